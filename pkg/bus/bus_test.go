package bus

import (
	"context"
	"testing"
)

func TestEventBus_PublishConsumeRoundTrip(t *testing.T) {
	eb := NewEventBus()
	defer eb.Close()

	eb.PublishTurnBatch(TurnBatchEvent{
		Thread:  ThreadRef{RawKey: "chat-1", Channel: "test"},
		Turns:   []Turn{{Role: RoleHuman, Content: "hi"}},
		Success: true,
	})

	ev, ok := eb.ConsumeTurnBatch(context.Background())
	if !ok {
		t.Fatalf("expected an event")
	}
	if ev.Thread.RawKey != "chat-1" || len(ev.Turns) != 1 {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestEventBus_DropsWhenBufferFull(t *testing.T) {
	eb := NewEventBus()
	defer eb.Close()

	for i := 0; i < cap(eb.turnBatches); i++ {
		eb.PublishTurnBatch(TurnBatchEvent{Thread: ThreadRef{RawKey: "c"}, Success: true})
	}

	eb.PublishTurnBatch(TurnBatchEvent{Thread: ThreadRef{RawKey: "overflow"}, Success: true})
	if eb.DroppedTurnBatches() != 1 {
		t.Fatalf("expected dropped count 1, got %d", eb.DroppedTurnBatches())
	}
}

func TestEventBus_ConsumeReturnsFalseOnCancel(t *testing.T) {
	eb := NewEventBus()
	defer eb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := eb.ConsumeTurnBatch(ctx); ok {
		t.Fatalf("expected ok=false on cancelled context")
	}
}

func TestEventBus_ClosedBusIgnoresPublish(t *testing.T) {
	eb := NewEventBus()
	eb.Close()

	eb.PublishTurnBatch(TurnBatchEvent{Thread: ThreadRef{RawKey: "late"}, Success: true})
	if _, ok := eb.ConsumeTurnBatch(context.Background()); ok {
		t.Fatalf("expected no events from a closed bus")
	}
}

func TestEventBus_RequestContext(t *testing.T) {
	eb := NewEventBus()
	defer eb.Close()

	if got := eb.RequestContext(BeforeTurnEvent{Query: "q"}); got != "" {
		t.Fatalf("expected empty context without a provider, got %q", got)
	}

	eb.SetContextProvider(func(ev BeforeTurnEvent) string {
		return "context for " + ev.Query
	})
	if got := eb.RequestContext(BeforeTurnEvent{Query: "q"}); got != "context for q" {
		t.Fatalf("unexpected provider answer: %q", got)
	}
}
