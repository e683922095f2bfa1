package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// archiveOne relocates a legacy file or directory into the archive,
// never overwriting an existing entry: a taken name gets a timestamp
// suffix, and if that too is taken (multiple runs inside one second), an
// incrementing counter until a free name is found.
func (m *Migrator) archiveOne(path string) (string, error) {
	if err := os.MkdirAll(m.archiveDir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	dest := filepath.Join(m.archiveDir, filepath.Base(path))
	if pathExists(dest) {
		stamped := dest + "-" + time.Now().UTC().Format("20060102-150405")
		dest = stamped
		for n := 1; pathExists(dest); n++ {
			dest = fmt.Sprintf("%s-%d", stamped, n)
		}
	}

	if err := os.Rename(path, dest); err != nil {
		return "", fmt.Errorf("relocate to archive: %w", err)
	}

	// Rename succeeded but verify anyway: a lingering original would mean
	// the same content gets migrated again on the next run.
	if pathExists(path) {
		return "", fmt.Errorf("original still present after relocation: %s", path)
	}
	return dest, nil
}

func pathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
