package gateway

import (
	"context"
	"sync/atomic"

	"github.com/dotsetgreg/dotrecall/pkg/bus"
	"github.com/dotsetgreg/dotrecall/pkg/channels"
	"github.com/dotsetgreg/dotrecall/pkg/config"
	"github.com/dotsetgreg/dotrecall/pkg/export"
	"github.com/dotsetgreg/dotrecall/pkg/journal"
	"github.com/dotsetgreg/dotrecall/pkg/logger"
	"github.com/dotsetgreg/dotrecall/pkg/memsync"
	"github.com/dotsetgreg/dotrecall/pkg/recall"
	"github.com/dotsetgreg/dotrecall/pkg/store"
)

// Gateway is the long-running daemon: it consumes completed turn batches
// from the event bus, feeds them through the sync engine, and keeps the
// exporter and channel listeners alive alongside.
type Gateway struct {
	bus      *bus.EventBus
	engine   *memsync.Engine
	exporter *export.Exporter
	channels *channels.Manager
	journal  *journal.Journal
	running  atomic.Bool
}

func New(cfg *config.Config, client *store.Client, jnl *journal.Journal) (*Gateway, error) {
	eventBus := bus.NewEventBus()

	recallSvc := recall.NewService(client)
	eventBus.SetContextProvider(recallSvc.ContextProvider())

	channelManager, err := channels.NewManager(cfg, eventBus)
	if err != nil {
		return nil, err
	}

	exporter := export.NewExporter(client, cfg.KnowledgeFilePath(), export.Options{
		Daily:           cfg.Export.Daily,
		OnStart:         cfg.Export.OnStart,
		IntervalMinutes: cfg.Export.IntervalMinutes,
	})

	return &Gateway{
		bus:      eventBus,
		engine:   memsync.NewEngine(client, jnl),
		exporter: exporter,
		channels: channelManager,
		journal:  jnl,
	}, nil
}

// Run blocks until ctx is cancelled. A single failed thread never takes
// down the loop: the error is logged, the batch is dropped, and the next
// batch for that thread recomputes the same delta from the watermark.
func (g *Gateway) Run(ctx context.Context) error {
	g.running.Store(true)

	if err := g.channels.StartAll(ctx); err != nil {
		return err
	}

	go g.exporter.Run(ctx)

	logger.InfoCF("gateway", "Gateway running", map[string]interface{}{
		"channels": g.channels.Count(),
	})

	for g.running.Load() {
		select {
		case <-ctx.Done():
			g.shutdown(ctx)
			return nil
		default:
			ev, ok := g.bus.ConsumeTurnBatch(ctx)
			if !ok {
				continue
			}
			g.handleBatch(ctx, ev)
		}
	}

	g.shutdown(ctx)
	return nil
}

func (g *Gateway) handleBatch(ctx context.Context, ev bus.TurnBatchEvent) {
	result, err := g.engine.HandleTurnBatch(ctx, ev)
	if err != nil {
		logger.ErrorCF("gateway", "Turn batch sync failed", map[string]interface{}{
			"thread": ev.Thread.RawKey,
			"error":  err.Error(),
		})
		return
	}
	if result.Skipped {
		return
	}
	logger.DebugCF("gateway", "Turn batch synced", map[string]interface{}{
		"session_key": result.SessionKey,
		"submitted":   result.Submitted,
		"watermark":   result.Watermark,
		"duplicate":   result.Duplicate,
	})
}

func (g *Gateway) Stop() {
	g.running.Store(false)
}

func (g *Gateway) shutdown(ctx context.Context) {
	g.channels.StopAll(ctx)
	g.bus.Close()
	if dropped := g.bus.DroppedTurnBatches(); dropped > 0 {
		logger.WarnCF("gateway", "Turn batches were dropped under backpressure", map[string]interface{}{
			"dropped": dropped,
		})
	}
	logger.InfoC("gateway", "Gateway stopped")
}
