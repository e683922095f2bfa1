package channels

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dotsetgreg/dotrecall/pkg/bus"
)

// quiesceDelay is how long a conversation must stay silent before its
// accumulated turn log is published as a completed batch.
const quiesceDelay = 15 * time.Second

type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
	IsAllowed(senderID string) bool
}

// BaseChannel carries the shared listener behavior: allow-list checks and
// per-conversation turn accumulation with quiesce-based batch emission.
// The per-conversation log is append-only and indexed from 0, matching
// what the sync engine's watermark counts against.
type BaseChannel struct {
	name      string
	bus       *bus.EventBus
	allowList []string
	running   bool

	mu      sync.Mutex
	logs    map[string][]bus.Turn
	flushes map[string]*time.Timer
}

func NewBaseChannel(name string, eventBus *bus.EventBus, allowList []string) *BaseChannel {
	return &BaseChannel{
		name:      name,
		bus:       eventBus,
		allowList: allowList,
		logs:      map[string][]bus.Turn{},
		flushes:   map[string]*time.Timer{},
	}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *BaseChannel) setRunning(running bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = running
}

func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}

	// Extract parts from compound senderID like "123456|username"
	idPart := senderID
	userPart := ""
	if idx := strings.Index(senderID, "|"); idx > 0 {
		idPart = senderID[:idx]
		userPart = senderID[idx+1:]
	}

	for _, allowed := range c.allowList {
		candidate := strings.TrimSpace(strings.TrimPrefix(allowed, "@"))
		if candidate == "" {
			continue
		}
		if candidate == senderID || candidate == idPart || (userPart != "" && candidate == userPart) {
			return true
		}
	}

	return false
}

// RecordTurn appends one turn to the conversation's log and (re)arms the
// quiesce timer. When the conversation goes quiet the full log is
// published as a turn-batch event.
func (c *BaseChannel) RecordTurn(chatID string, turn bus.Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logs[chatID] = append(c.logs[chatID], turn)

	if timer, ok := c.flushes[chatID]; ok {
		timer.Reset(quiesceDelay)
		return
	}
	c.flushes[chatID] = time.AfterFunc(quiesceDelay, func() {
		c.flush(chatID)
	})
}

func (c *BaseChannel) flush(chatID string) {
	c.mu.Lock()
	turns := make([]bus.Turn, len(c.logs[chatID]))
	copy(turns, c.logs[chatID])
	delete(c.flushes, chatID)
	c.mu.Unlock()

	if len(turns) == 0 {
		return
	}
	c.bus.PublishTurnBatch(bus.TurnBatchEvent{
		Thread:  bus.ThreadRef{RawKey: chatID, Channel: c.name},
		Turns:   turns,
		Success: true,
	})
}

// FlushAll publishes every pending conversation immediately, used on
// shutdown so quiet threads are not lost to the quiesce timer.
func (c *BaseChannel) FlushAll() {
	c.mu.Lock()
	chatIDs := make([]string, 0, len(c.logs))
	for chatID := range c.logs {
		chatIDs = append(chatIDs, chatID)
	}
	for _, timer := range c.flushes {
		timer.Stop()
	}
	c.flushes = map[string]*time.Timer{}
	c.mu.Unlock()

	for _, chatID := range chatIDs {
		c.flush(chatID)
	}
}
