// Package journal is the local sqlite record of sync progress. The remote
// watermark is the commitment signal; the journal exists so a run that
// crashed between message submission and watermark advance can be detected
// by content digest instead of double-committing the same delta.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type Journal struct {
	db *sql.DB
}

// Run is one recorded sync invocation for a thread.
type Run struct {
	ID          string
	SessionKey  string
	Submitted   int
	Watermark   int
	Duplicate   bool
	Error       string
	CreatedAtMS int64
}

// Open creates/opens the journal database at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	// Single-process journal. One shared connection avoids writer lock
	// contention with SQLite under concurrent goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	j := &Journal{db: db}
	if err := j.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS sync_commits (
			session_key TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			watermark INTEGER NOT NULL,
			committed_at_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sync_runs (
			id TEXT PRIMARY KEY,
			session_key TEXT NOT NULL,
			submitted INTEGER NOT NULL,
			watermark INTEGER NOT NULL,
			duplicate INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS sync_runs_created_idx ON sync_runs(created_at_ms DESC);`,
		`CREATE TABLE IF NOT EXISTS metrics (
			id TEXT PRIMARY KEY,
			metric TEXT NOT NULL,
			value REAL NOT NULL,
			labels TEXT NOT NULL DEFAULT '{}',
			created_at_ms INTEGER NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := j.db.Exec(stmt); err != nil {
			return fmt.Errorf("init journal schema: %w", err)
		}
	}
	return nil
}

// HasCommit reports whether the most recent recorded commit for the
// session carries the given content digest.
func (j *Journal) HasCommit(ctx context.Context, sessionKey, digest string) (bool, error) {
	var stored string
	err := j.db.QueryRowContext(ctx,
		`SELECT digest FROM sync_commits WHERE session_key = ?`, sessionKey).Scan(&stored)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return stored == digest, nil
}

// RecordCommit stores the digest of a delta just before it is submitted.
func (j *Journal) RecordCommit(ctx context.Context, sessionKey, digest string, watermark int) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO sync_commits (session_key, digest, watermark, committed_at_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_key) DO UPDATE SET
			digest = excluded.digest,
			watermark = excluded.watermark,
			committed_at_ms = excluded.committed_at_ms`,
		sessionKey, digest, watermark, time.Now().UnixMilli())
	return err
}

func (j *Journal) RecordRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		run.ID = "run-" + uuid.NewString()
	}
	if run.CreatedAtMS == 0 {
		run.CreatedAtMS = time.Now().UnixMilli()
	}
	duplicate := 0
	if run.Duplicate {
		duplicate = 1
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, session_key, submitted, watermark, duplicate, error, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.SessionKey, run.Submitted, run.Watermark, duplicate, run.Error, run.CreatedAtMS)
	return err
}

func (j *Journal) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, session_key, submitted, watermark, duplicate, error, created_at_ms
		FROM sync_runs ORDER BY created_at_ms DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		var run Run
		var duplicate int
		if err := rows.Scan(&run.ID, &run.SessionKey, &run.Submitted, &run.Watermark,
			&duplicate, &run.Error, &run.CreatedAtMS); err != nil {
			return nil, err
		}
		run.Duplicate = duplicate != 0
		out = append(out, run)
	}
	return out, rows.Err()
}

func (j *Journal) AddMetric(ctx context.Context, metric string, value float64, labels map[string]string) error {
	labelsJSON := "{}"
	if len(labels) > 0 {
		data, err := json.Marshal(labels)
		if err != nil {
			return err
		}
		labelsJSON = string(data)
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO metrics (id, metric, value, labels, created_at_ms)
		VALUES (?, ?, ?, ?, ?)`,
		"m-"+uuid.NewString(), metric, value, labelsJSON, time.Now().UnixMilli())
	return err
}
