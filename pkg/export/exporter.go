package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"github.com/dotsetgreg/dotrecall/pkg/logger"
	"github.com/dotsetgreg/dotrecall/pkg/store"
)

// dailyExpr fires the daily export in the early morning, when the store
// has had the night's consolidation pass.
const dailyExpr = "0 4 * * *"

type Options struct {
	Daily           bool
	OnStart         bool
	IntervalMinutes int
}

// Exporter periodically pulls the store's synthesized knowledge about the
// owner back into the local knowledge file's managed section. It is
// read-only with respect to the turn log and independent of the sync loop.
type Exporter struct {
	client *store.Client
	path   string
	opts   Options
	cron   *gronx.Gronx
}

func NewExporter(client *store.Client, knowledgeFile string, opts Options) *Exporter {
	if opts.IntervalMinutes < 1 {
		opts.IntervalMinutes = 1
	}
	if opts.IntervalMinutes > 1440 {
		opts.IntervalMinutes = 1440
	}
	return &Exporter{
		client: client,
		path:   knowledgeFile,
		opts:   opts,
		cron:   gronx.New(),
	}
}

// Run blocks until ctx is cancelled. In daily mode the cron expression
// gates a minute-resolution tick; otherwise an interval ticker drives the
// export directly. Export failures are logged and retried on the next
// tick; they never stop the loop.
func (ex *Exporter) Run(ctx context.Context) {
	if ex.opts.OnStart {
		if err := ex.ExportOnce(ctx); err != nil {
			logger.WarnCF("export", "Startup export failed", map[string]interface{}{"error": err.Error()})
		}
	}

	interval := time.Duration(ex.opts.IntervalMinutes) * time.Minute
	if ex.opts.Daily {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastDaily time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if ex.opts.Daily {
				due, err := ex.cron.IsDue(dailyExpr, now)
				if err != nil || !due {
					continue
				}
				if now.Sub(lastDaily) < time.Minute {
					continue
				}
				lastDaily = now
			}
			if err := ex.ExportOnce(ctx); err != nil {
				logger.WarnCF("export", "Periodic export failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}

// ExportOnce fetches the owner's current representation and profile card
// from the store and merges them into the knowledge file.
func (ex *Exporter) ExportOnce(ctx context.Context) error {
	if !ex.client.Ready() {
		return store.ErrNoCredential
	}

	owner := ex.client.Peer(store.OwnerPeerID)

	representation, err := owner.Representation(ctx, store.RepresentationOptions{})
	if err != nil {
		return fmt.Errorf("fetch owner representation: %w", err)
	}

	facts, err := owner.Card(ctx)
	if err != nil {
		return fmt.Errorf("fetch owner card: %w", err)
	}

	content := composeKnowledge(representation, facts)
	if strings.TrimSpace(content) == "" {
		logger.DebugC("export", "Store returned no knowledge yet, skipping export")
		return nil
	}

	if err := MergeManagedSection(ex.path, content, time.Now()); err != nil {
		return err
	}
	logger.InfoCF("export", "Knowledge file updated", map[string]interface{}{
		"path":  ex.path,
		"facts": len(facts),
	})
	return nil
}

func composeKnowledge(representation string, facts []string) string {
	var b strings.Builder
	if strings.TrimSpace(representation) != "" {
		b.WriteString(strings.TrimSpace(representation))
	}
	if len(facts) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("## Profile\n")
		for _, fact := range facts {
			fact = strings.TrimSpace(fact)
			if fact == "" {
				continue
			}
			b.WriteString("- ")
			b.WriteString(fact)
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(b.String())
}
