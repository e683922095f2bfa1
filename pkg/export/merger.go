package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ManagedHeader opens the machine-owned section of a knowledge file. The
// section runs from this marker to the next top-level header or the end
// of the file; everything else in the file belongs to the human.
const ManagedHeader = "# Synced Memory"

const managedNotice = "<!-- Generated by dotrecall. Edits inside this section are overwritten on the next export. -->"

// MergeManagedSection regenerates the managed section of the file at path
// with fresh content, keeping all human-authored text outside the section.
// The one normalization applied: trailing blank lines of the static text
// collapse to a single blank line before the managed header. A missing
// file is treated as empty. Safe to run repeatedly: the output is stable
// up to the timestamp line.
func MergeManagedSection(path, content string, syncedAt time.Time) error {
	existing := ""
	if data, err := os.ReadFile(path); err == nil {
		existing = string(data)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read knowledge file: %w", err)
	}

	static := removeManagedSection(existing)

	var b strings.Builder
	if strings.TrimSpace(static) != "" {
		b.WriteString(strings.TrimRight(static, "\n"))
		b.WriteString("\n\n")
	}
	b.WriteString(ManagedHeader)
	b.WriteString("\n\n")
	b.WriteString(managedNotice)
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(content))
	b.WriteString("\n\n---\n")
	b.WriteString(fmt.Sprintf("_Last synced: %s_\n", syncedAt.UTC().Format(time.RFC3339)))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create knowledge dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write knowledge file: %w", err)
	}
	return nil
}

// removeManagedSection returns the file content with the managed span cut
// out: everything from the header marker up to (not including) the next
// top-level header, or end-of-file. Text before the span and any later
// top-level sections are both kept.
func removeManagedSection(content string) string {
	if content == "" {
		return ""
	}

	lines := strings.Split(content, "\n")
	kept := make([]string, 0, len(lines))
	inManaged := false
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if !inManaged && trimmed == ManagedHeader {
			inManaged = true
			continue
		}
		if inManaged {
			if strings.HasPrefix(trimmed, "# ") {
				inManaged = false
			} else {
				continue
			}
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
