package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const publishTimeout = 100 * time.Millisecond

// EventBus carries turn-batch completions from channel adapters to the
// sync loop and serves before-turn context requests.
type EventBus struct {
	turnBatches chan TurnBatchEvent
	provider    ContextProvider
	closed      bool
	dropped     atomic.Uint64
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{
		turnBatches: make(chan TurnBatchEvent, 100),
	}
}

// PublishTurnBatch enqueues a completed turn batch. A full queue is given
// a short grace period, then the event is dropped and counted rather than
// blocking the publishing channel adapter.
func (eb *EventBus) PublishTurnBatch(ev TurnBatchEvent) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return
	}

	select {
	case eb.turnBatches <- ev:
	default:
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case eb.turnBatches <- ev:
		case <-timer.C:
			eb.dropped.Add(1)
		}
	}
}

func (eb *EventBus) ConsumeTurnBatch(ctx context.Context) (TurnBatchEvent, bool) {
	select {
	case ev, ok := <-eb.turnBatches:
		if !ok {
			return TurnBatchEvent{}, false
		}
		return ev, true
	case <-ctx.Done():
		return TurnBatchEvent{}, false
	}
}

func (eb *EventBus) SetContextProvider(provider ContextProvider) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.provider = provider
}

// RequestContext answers a before-turn event synchronously. Returns ""
// when no provider is registered or the provider has nothing to inject.
func (eb *EventBus) RequestContext(ev BeforeTurnEvent) string {
	eb.mu.RLock()
	provider := eb.provider
	eb.mu.RUnlock()
	if provider == nil {
		return ""
	}
	return provider(ev)
}

func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		return
	}
	eb.closed = true
	close(eb.turnBatches)
}

func (eb *EventBus) DroppedTurnBatches() uint64 {
	return eb.dropped.Load()
}
