package memsync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dotsetgreg/dotrecall/pkg/bus"
	"github.com/dotsetgreg/dotrecall/pkg/journal"
	"github.com/dotsetgreg/dotrecall/pkg/logger"
	"github.com/dotsetgreg/dotrecall/pkg/store"
)

const watermarkMetadataKey = "sync_watermark"

// Engine commits the uncommitted tail of each conversation's turn log to
// the remote store, exactly once per successful run. The watermark (count
// of turns already committed) lives as metadata on the remote session; a
// local journal digest detects re-submission after a crash between message
// submission and watermark advance.
type Engine struct {
	client  *store.Client
	journal *journal.Journal
	grammar KeyGrammar

	mu      sync.Mutex
	threads map[string]*sync.Mutex
}

// Result describes what one sync run did.
type Result struct {
	SessionKey string
	Submitted  int
	Watermark  int
	Duplicate  bool
	Skipped    bool
}

func NewEngine(client *store.Client, jnl *journal.Journal) *Engine {
	return &Engine{
		client:  client,
		journal: jnl,
		grammar: DefaultKeyGrammar,
		threads: map[string]*sync.Mutex{},
	}
}

// HandleTurnBatch syncs one completed turn batch. Runs for the same thread
// are serialized; failures leave all state unchanged so the next batch
// retries the same delta naturally.
func (e *Engine) HandleTurnBatch(ctx context.Context, ev bus.TurnBatchEvent) (Result, error) {
	if !ev.Success || len(ev.Turns) == 0 {
		return Result{Skipped: true}, nil
	}

	sessionKey := e.grammar.Normalize(ev.Thread.RawKey, ev.Thread.Channel)
	lock := e.threadLock(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	result, err := e.syncThread(ctx, sessionKey, ev.Turns)
	e.recordRun(ctx, result, err)
	return result, err
}

func (e *Engine) syncThread(ctx context.Context, sessionKey string, turns []bus.Turn) (Result, error) {
	result := Result{SessionKey: sessionKey}

	session := e.client.Session(sessionKey)
	metadata, watermark, err := e.resolveWatermark(ctx, session, len(turns))
	if err != nil {
		return result, err
	}

	// Both peers are (re)registered on every run. The agent perceives the
	// owner's messages and contributes its own; the owner's model only
	// accumulates what the owner said.
	if err := session.AddPeers(ctx, []store.SessionPeer{
		{PeerID: store.OwnerPeerID, ObserveMe: true, ObserveOthers: false},
		{PeerID: store.AgentPeerID, ObserveMe: true, ObserveOthers: true},
	}); err != nil {
		return result, fmt.Errorf("register session peers: %w", err)
	}

	result.Watermark = watermark
	if watermark >= len(turns) {
		// Nothing new since the last run.
		return result, nil
	}

	delta := turns[watermark:]
	entries := ExtractEntries(delta)
	digest := deltaDigest(sessionKey, watermark, entries)

	// Checked even when the session looks fresh: a crash between message
	// submission and the first watermark write leaves a session with no
	// watermark metadata, and the retry resolves to the same bootstrap
	// watermark and the same digest.
	duplicate := false
	if len(entries) > 0 {
		duplicate = e.alreadyCommitted(ctx, sessionKey, digest)
	}

	if len(entries) > 0 && !duplicate {
		if e.journal != nil {
			// Recorded before submission: a crash after AddMessages but
			// before the watermark write leaves the digest behind, and the
			// retry is recognized instead of double-committed.
			if err := e.journal.RecordCommit(ctx, sessionKey, digest, len(turns)); err != nil {
				logger.WarnCF("sync", "Failed to journal commit digest",
					map[string]interface{}{"session_key": sessionKey, "error": err.Error()})
			}
		}
		if err := session.AddMessages(ctx, entriesToMessages(entries)); err != nil {
			return result, fmt.Errorf("submit %d entries: %w", len(entries), err)
		}
		result.Submitted = len(entries)
	}
	result.Duplicate = duplicate

	// The watermark advances to the full log length even when the delta
	// extracted to nothing, so empty-after-filtering turns are never
	// re-scanned forever. Advancing it is the commitment signal.
	metadata[watermarkMetadataKey] = strconv.Itoa(len(turns))
	metadata["sync_digest"] = digest
	metadata["sync_at"] = time.Now().UTC().Format(time.RFC3339)
	if err := session.SetMetadata(ctx, metadata); err != nil {
		return result, fmt.Errorf("advance watermark: %w", err)
	}
	result.Watermark = len(turns)

	logger.DebugCF("sync", "Thread synced", map[string]interface{}{
		"session_key": sessionKey,
		"submitted":   result.Submitted,
		"watermark":   result.Watermark,
		"duplicate":   result.Duplicate,
	})
	return result, nil
}

// resolveWatermark fetches or initializes the session's watermark.
// First-time sessions skip the backlog and start at max(0, total-2), so
// only the most recent exchange is committed; earlier history predates the
// store's involvement. The alternative (watermark 0, full backlog) is
// equally correct but floods new sessions with stale context.
func (e *Engine) resolveWatermark(ctx context.Context, session *store.Session, totalTurns int) (map[string]string, int, error) {
	metadata, err := session.GetMetadata(ctx)
	if errors.Is(err, store.ErrNotFound) {
		if err := session.Ensure(ctx); err != nil {
			return nil, 0, fmt.Errorf("create session: %w", err)
		}
		bootstrap := totalTurns - 2
		if bootstrap < 0 {
			bootstrap = 0
		}
		return map[string]string{}, bootstrap, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read session metadata: %w", err)
	}

	raw, ok := metadata[watermarkMetadataKey]
	if !ok || raw == "" {
		bootstrap := totalTurns - 2
		if bootstrap < 0 {
			bootstrap = 0
		}
		return metadata, bootstrap, nil
	}

	watermark, convErr := strconv.Atoi(raw)
	if convErr != nil || watermark < 0 {
		logger.WarnCF("sync", "Unreadable watermark metadata, resetting",
			map[string]interface{}{"session_key": session.Key, "value": raw})
		return metadata, 0, nil
	}
	if watermark > totalTurns {
		// The invariant says the watermark never exceeds the log length.
		// A larger stored value means the host restarted the conversation;
		// clamp rather than slice out of range.
		logger.WarnCF("sync", "Watermark exceeds turn log, clamping",
			map[string]interface{}{"session_key": session.Key, "watermark": watermark, "turns": totalTurns})
		watermark = totalTurns
	}
	return metadata, watermark, nil
}

func (e *Engine) alreadyCommitted(ctx context.Context, sessionKey, digest string) bool {
	if e.journal == nil {
		return false
	}
	committed, err := e.journal.HasCommit(ctx, sessionKey, digest)
	if err != nil {
		logger.WarnCF("sync", "Journal lookup failed",
			map[string]interface{}{"session_key": sessionKey, "error": err.Error()})
		return false
	}
	if committed {
		logger.InfoCF("sync", "Delta already committed, advancing watermark only",
			map[string]interface{}{"session_key": sessionKey})
	}
	return committed
}

func (e *Engine) threadLock(sessionKey string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.threads[sessionKey]
	if !ok {
		lock = &sync.Mutex{}
		e.threads[sessionKey] = lock
	}
	return lock
}

func (e *Engine) recordRun(ctx context.Context, result Result, runErr error) {
	if e.journal == nil || result.Skipped {
		return
	}
	run := journal.Run{
		SessionKey: result.SessionKey,
		Submitted:  result.Submitted,
		Watermark:  result.Watermark,
		Duplicate:  result.Duplicate,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := e.journal.RecordRun(ctx, run); err != nil {
		logger.WarnCF("sync", "Failed to record sync run",
			map[string]interface{}{"session_key": result.SessionKey, "error": err.Error()})
	}
	_ = e.journal.AddMetric(ctx, "sync.entries.submitted", float64(result.Submitted),
		map[string]string{"session_key": result.SessionKey})
}

func entriesToMessages(entries []Entry) []store.Message {
	out := make([]store.Message, 0, len(entries))
	for _, entry := range entries {
		peerID := store.OwnerPeerID
		if entry.Role == bus.RoleAgent {
			peerID = store.AgentPeerID
		}
		out = append(out, store.Message{PeerID: peerID, Content: entry.Text})
	}
	return out
}

// deltaDigest fingerprints a delta by position and sanitized content, so
// the same recomputed delta is recognizable across process restarts.
func deltaDigest(sessionKey string, watermark int, entries []Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|", sessionKey, watermark)
	for _, entry := range entries {
		fmt.Fprintf(h, "%s:%d:%s|", entry.Role, len(entry.Text), entry.Text)
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}
