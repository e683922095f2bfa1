package migrate

import "path/filepath"

// Ownership says whose knowledge model a migrated fact belongs to.
type Ownership string

const (
	AboutOwner Ownership = "owner"
	AboutAgent Ownership = "agent"
)

// LegacyTarget is one known legacy knowledge file or directory, relative
// to the workspace root. Whether a target is a file or a directory is
// decided by stat at migration time, not declared here.
type LegacyTarget struct {
	Name      string
	Ownership Ownership
}

// legacyTargets enumerates everything the migration retires. Adding a new
// legacy file type is a change to this table, not to the migration code.
var legacyTargets = []LegacyTarget{
	{Name: "MEMORY.md", Ownership: AboutOwner},
	{Name: "USER.md", Ownership: AboutOwner},
	{Name: "IDENTITY.md", Ownership: AboutAgent},
	{Name: "SOUL.md", Ownership: AboutAgent},
	{Name: "memory", Ownership: AboutOwner},
	{Name: "memories", Ownership: AboutOwner},
}

// agentOwnedNames marks filenames inside legacy directories that describe
// the agent itself; everything else in those directories defaults to the
// directory's ownership (the owner).
var agentOwnedNames = map[string]struct{}{
	"IDENTITY.md": {},
	"SOUL.md":     {},
	"AGENT.md":    {},
}

// classifyEntry resolves ownership for a file found inside a legacy
// directory walk.
func classifyEntry(path string, dirDefault Ownership) Ownership {
	if _, ok := agentOwnedNames[filepath.Base(path)]; ok {
		return AboutAgent
	}
	return dirDefault
}
