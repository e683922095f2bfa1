package journal

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	jnl, err := Open(filepath.Join(t.TempDir(), "state", "journal.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { jnl.Close() })
	return jnl
}

func TestJournal_CommitRoundTrip(t *testing.T) {
	jnl := openTestJournal(t)
	ctx := context.Background()

	committed, err := jnl.HasCommit(ctx, "chat-1", "digest-a")
	if err != nil {
		t.Fatalf("HasCommit: %v", err)
	}
	if committed {
		t.Fatalf("expected no commit before recording")
	}

	if err := jnl.RecordCommit(ctx, "chat-1", "digest-a", 4); err != nil {
		t.Fatalf("RecordCommit: %v", err)
	}

	committed, err = jnl.HasCommit(ctx, "chat-1", "digest-a")
	if err != nil || !committed {
		t.Fatalf("expected recorded digest to match, committed=%v err=%v", committed, err)
	}

	committed, err = jnl.HasCommit(ctx, "chat-1", "digest-b")
	if err != nil || committed {
		t.Fatalf("different digest must not match, committed=%v err=%v", committed, err)
	}
}

func TestJournal_CommitUpsertReplacesDigest(t *testing.T) {
	jnl := openTestJournal(t)
	ctx := context.Background()

	if err := jnl.RecordCommit(ctx, "chat-1", "digest-a", 2); err != nil {
		t.Fatalf("first RecordCommit: %v", err)
	}
	if err := jnl.RecordCommit(ctx, "chat-1", "digest-b", 5); err != nil {
		t.Fatalf("second RecordCommit: %v", err)
	}

	committed, err := jnl.HasCommit(ctx, "chat-1", "digest-a")
	if err != nil || committed {
		t.Fatalf("stale digest still matched after upsert, committed=%v err=%v", committed, err)
	}
	committed, err = jnl.HasCommit(ctx, "chat-1", "digest-b")
	if err != nil || !committed {
		t.Fatalf("latest digest should match, committed=%v err=%v", committed, err)
	}
}

func TestJournal_RunsMostRecentFirst(t *testing.T) {
	jnl := openTestJournal(t)
	ctx := context.Background()

	for i, key := range []string{"chat-a", "chat-b", "chat-c"} {
		run := Run{
			SessionKey:  key,
			Submitted:   i,
			Watermark:   i + 1,
			CreatedAtMS: int64(1000 + i),
		}
		if err := jnl.RecordRun(ctx, run); err != nil {
			t.Fatalf("RecordRun %s: %v", key, err)
		}
	}

	runs, err := jnl.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].SessionKey != "chat-c" || runs[1].SessionKey != "chat-b" {
		t.Fatalf("unexpected order: %s, %s", runs[0].SessionKey, runs[1].SessionKey)
	}
	if runs[0].ID == "" {
		t.Fatalf("expected generated run id")
	}
}

func TestJournal_RecordRunKeepsDuplicateFlagAndError(t *testing.T) {
	jnl := openTestJournal(t)
	ctx := context.Background()

	if err := jnl.RecordRun(ctx, Run{SessionKey: "chat-d", Duplicate: true, Error: "boom"}); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	runs, err := jnl.RecentRuns(ctx, 1)
	if err != nil || len(runs) != 1 {
		t.Fatalf("RecentRuns: runs=%d err=%v", len(runs), err)
	}
	if !runs[0].Duplicate || runs[0].Error != "boom" {
		t.Fatalf("flags not round-tripped: %+v", runs[0])
	}
}

func TestJournal_AddMetric(t *testing.T) {
	jnl := openTestJournal(t)
	ctx := context.Background()

	if err := jnl.AddMetric(ctx, "sync.entries.submitted", 3, map[string]string{"session_key": "chat-e"}); err != nil {
		t.Fatalf("AddMetric with labels: %v", err)
	}
	if err := jnl.AddMetric(ctx, "sync.entries.submitted", 0, nil); err != nil {
		t.Fatalf("AddMetric without labels: %v", err)
	}
}
