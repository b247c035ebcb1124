// Package worker holds background maintenance workers.
package worker

import (
	"context"
	"log/slog"
	"time"
)

// PruneStore deletes archived attempts older than the given age.
type PruneStore interface {
	PruneOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// Pruner deletes old archived attempts based on retention policy.
type Pruner struct {
	retention time.Duration
	store     PruneStore
	log       *slog.Logger
}

// NewPruner creates a new Pruner worker. A retention of zero disables
// pruning.
func NewPruner(retention time.Duration, store PruneStore) *Pruner {
	return &Pruner{
		retention: retention,
		store:     store,
		log:       slog.Default().With("component", "pruner"),
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check at 10% of the retention period, clamped to [1m, 1h]
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	n, err := p.store.PruneOlderThan(ctx, p.retention)
	if err != nil {
		p.log.Warn("Failed to prune archived attempts", "error", err)
		return
	}
	if n > 0 {
		p.log.Info("Pruned archived attempts", "count", n)
	}
}
