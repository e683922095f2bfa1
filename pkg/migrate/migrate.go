// Package migrate converts pre-existing free-form knowledge files into
// discrete facts in the external store, then retires the originals into a
// collision-safe archive. It is a one-shot tool: archival runs only after
// submission demonstrably succeeded, so local data is never in a state of
// being neither stored remotely nor recoverable locally.
package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dotsetgreg/dotrecall/pkg/logger"
	"github.com/dotsetgreg/dotrecall/pkg/store"
)

// Fact is one unit of legacy knowledge ready for submission.
type Fact struct {
	Text      string
	Ownership Ownership
	Source    string
}

// ItemFailure reports one legacy item that could not be archived.
type ItemFailure struct {
	Path   string
	Reason string
}

// Report summarizes a migration run.
type Report struct {
	OwnerFacts int
	AgentFacts int
	Archived   []string
	Failures   []ItemFailure
}

type Migrator struct {
	client     *store.Client
	workspace  string
	archiveDir string
}

func NewMigrator(client *store.Client, workspace, archiveDir string) *Migrator {
	return &Migrator{
		client:     client,
		workspace:  workspace,
		archiveDir: archiveDir,
	}
}

// Run migrates every recognized legacy file and directory. On any
// submission failure the archival step is skipped entirely and the
// originals stay in place.
func (m *Migrator) Run(ctx context.Context) (Report, error) {
	report := Report{}

	if !m.client.Ready() {
		return report, fmt.Errorf(
			"%w: set store.api_key (or DOTRECALL_STORE_API_KEY); legacy files were left in place",
			store.ErrNoCredential)
	}

	facts, present, err := m.collect()
	if err != nil {
		return report, err
	}
	if len(present) == 0 {
		logger.InfoC("migrate", "No legacy knowledge files found, nothing to do")
		return report, nil
	}

	owner := []store.Conclusion{}
	agent := []store.Conclusion{}
	for _, fact := range facts {
		c := store.Conclusion{Content: fact.Text}
		if fact.Ownership == AboutAgent {
			agent = append(agent, c)
		} else {
			owner = append(owner, c)
		}
	}
	report.OwnerFacts = len(owner)
	report.AgentFacts = len(agent)

	agentPeer := m.client.Peer(store.AgentPeerID)
	if err := m.client.Peer(store.OwnerPeerID).Ensure(ctx); err != nil {
		return report, fmt.Errorf("ensure owner peer; legacy files were left in place: %w", err)
	}
	if err := agentPeer.Ensure(ctx); err != nil {
		return report, fmt.Errorf("ensure agent peer; legacy files were left in place: %w", err)
	}

	// Owner-tagged facts become the agent's observations about the owner;
	// agent-tagged facts go into the agent's own self model. Two batches,
	// and either failure aborts archival.
	if err := agentPeer.AddConclusions(ctx, store.OwnerPeerID, owner); err != nil {
		return report, fmt.Errorf("submit owner facts; legacy files were left in place: %w", err)
	}
	if err := agentPeer.AddConclusions(ctx, "", agent); err != nil {
		return report, fmt.Errorf("submit agent facts; legacy files were left in place: %w", err)
	}

	logger.InfoCF("migrate", "Legacy knowledge submitted", map[string]interface{}{
		"owner_facts": report.OwnerFacts,
		"agent_facts": report.AgentFacts,
	})

	m.archiveAll(present, &report)
	return report, nil
}

// collect walks the recognized legacy targets and produces one fact per
// non-empty file. It also returns which target paths actually exist, so
// archival only touches what is really there.
func (m *Migrator) collect() ([]Fact, []string, error) {
	facts := []Fact{}
	present := []string{}

	for _, target := range legacyTargets {
		path := filepath.Join(m.workspace, target.Name)
		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("stat legacy target %s: %w", target.Name, err)
		}
		present = append(present, path)

		if !info.IsDir() {
			fact, ok, err := m.fileFact(path, target.Ownership)
			if err != nil {
				return nil, nil, err
			}
			if ok {
				facts = append(facts, fact)
			}
			continue
		}

		walkErr := filepath.WalkDir(path, func(entry string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			fact, ok, err := m.fileFact(entry, classifyEntry(entry, target.Ownership))
			if err != nil {
				return err
			}
			if ok {
				facts = append(facts, fact)
			}
			return nil
		})
		if walkErr != nil {
			return nil, nil, fmt.Errorf("walk legacy dir %s: %w", target.Name, walkErr)
		}
	}
	return facts, present, nil
}

func (m *Migrator) fileFact(path string, ownership Ownership) (Fact, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fact{}, false, fmt.Errorf("read legacy file %s: %w", path, err)
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return Fact{}, false, nil
	}

	rel, err := filepath.Rel(m.workspace, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	return Fact{
		Text:      fmt.Sprintf("Memory file: %s\n\n%s", rel, content),
		Ownership: ownership,
		Source:    rel,
	}, true, nil
}

func (m *Migrator) archiveAll(paths []string, report *Report) {
	for _, path := range paths {
		dest, err := m.archiveOne(path)
		if err != nil {
			report.Failures = append(report.Failures, ItemFailure{Path: path, Reason: err.Error()})
			logger.WarnCF("migrate", "Failed to archive legacy item",
				map[string]interface{}{"path": path, "error": err.Error()})
			continue
		}
		report.Archived = append(report.Archived, dest)
	}
}
