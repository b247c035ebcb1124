// Package control wires the retry engine to its storage, queue and
// server components and manages their lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/bulwark/internal/core/config"
	"github.com/vietddude/bulwark/internal/core/worker"
	"github.com/vietddude/bulwark/internal/fetch"
	"github.com/vietddude/bulwark/internal/infra/audit"
	"github.com/vietddude/bulwark/internal/infra/dlq"
	"github.com/vietddude/bulwark/internal/infra/storage/postgres"
	"github.com/vietddude/bulwark/internal/retry/coordinator"
	"github.com/vietddude/bulwark/internal/retry/introspect"
)

// Guard is the main application struct that manages the engine
// lifecycle. Components whose configuration is absent stay nil and are
// skipped at start and stop.
type Guard struct {
	cfg      *config.AppConfig
	coord    *coordinator.Coordinator
	fetcher  *fetch.Service
	server   *introspect.Server
	db       *postgres.DB
	attempts *postgres.AttemptRepo
	archiver *postgres.Archiver
	auditor  *audit.Writer
	queue    *dlq.Queue
	replayer *fetch.ReplayWorker
	log      *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGuard creates a Guard with all configured dependencies initialized.
func NewGuard(cfg *config.AppConfig) (*Guard, error) {
	g := &Guard{
		cfg:   cfg,
		coord: coordinator.New(cfg.Retry.Coordinator()),
		log:   slog.Default().With("component", "guard"),
	}

	// 1. Attempt archive (optional)
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		g.db = db
		g.attempts = postgres.NewAttemptRepo(db)
		g.archiver = postgres.NewArchiver(g.attempts)
		g.archiver.FlushSize = cfg.Archive.FlushSize
		g.archiver.Interval = time.Duration(cfg.Archive.FlushIntervalSeconds) * time.Second
		g.coord.Journal().AddSink(g.archiver)
		g.log.Info("Attempt archive enabled")
	}

	// 2. Audit trail (optional)
	if cfg.Audit.File != "" {
		g.auditor = audit.NewWriter(cfg.Audit)
		g.coord.Journal().AddSink(g.auditor)
		g.log.Info("Audit trail enabled", "file", cfg.Audit.File)
	}

	// 3. Fetch service
	g.fetcher = fetch.NewService(g.coord, cfg.Fetch)

	// 4. Dead letter queue (optional)
	if cfg.Redis.URL != "" {
		queue, err := dlq.NewQueue(cfg.Redis)
		if err != nil {
			g.log.Warn("Failed to connect to Redis, dead letter queue disabled", "error", err)
		} else {
			g.queue = queue
			g.fetcher.SetDeadLetterSink(queue)
			g.replayer = fetch.NewReplayWorker(cfg.Replay.Worker(), queue, g.fetcher)
			g.log.Info("Dead letter queue enabled")
		}
	}

	// 5. Introspection server
	g.server = introspect.NewServer(cfg.Server.Port, g.coord, g.fetcher)

	return g, nil
}

// Start starts the guard and all its components.
func (g *Guard) Start(ctx context.Context) error {
	ctx, g.cancel = context.WithCancel(ctx)

	go func() {
		if err := g.server.Start(); err != nil {
			g.log.Error("Introspection server failed", "error", err)
		}
	}()

	if g.db != nil {
		g.db.StartMetricsCollector(ctx)
	}

	if g.archiver != nil {
		g.log.Info("Starting attempt archiver")
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			if err := g.archiver.Run(ctx); err != nil {
				g.log.Error("Attempt archiver failed", "error", err)
			}
		}()
	}

	if g.replayer != nil {
		g.log.Info("Starting dead letter replay worker")
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			if err := g.replayer.Run(ctx); err != nil {
				g.log.Error("Replay worker failed", "error", err)
			}
		}()
	}

	if g.attempts != nil && g.cfg.Archive.RetentionDays > 0 {
		g.log.Info("Starting archive pruner", "days", g.cfg.Archive.RetentionDays)
		retention := time.Duration(g.cfg.Archive.RetentionDays) * 24 * time.Hour
		pruner := worker.NewPruner(retention, g.attempts)
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			pruner.Start(ctx)
		}()
	}

	return nil
}

// Stop stops the guard. Background workers get until ctx expires to
// drain before shared resources are closed.
func (g *Guard) Stop(ctx context.Context) error {
	g.log.Info("Stopping guard...")

	if g.cancel != nil {
		g.cancel()
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		g.log.Warn("Shutdown deadline hit before workers drained")
	}

	if g.queue != nil {
		if err := g.queue.Close(); err != nil {
			g.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if g.auditor != nil {
		if err := g.auditor.Close(); err != nil {
			g.log.Warn("Failed to close audit trail", "error", err)
		}
	}
	if g.db != nil {
		if err := g.db.Close(); err != nil {
			g.log.Warn("Failed to close database", "error", err)
		}
	}

	return g.server.Stop(ctx)
}

// Coordinator exposes the retry engine.
func (g *Guard) Coordinator() *coordinator.Coordinator {
	return g.coord
}

// Fetcher exposes the fetch service.
func (g *Guard) Fetcher() *fetch.Service {
	return g.fetcher
}

// Attempts exposes the attempt archive, or nil when no database is
// configured.
func (g *Guard) Attempts() *postgres.AttemptRepo {
	return g.attempts
}

// Queue exposes the dead letter queue, or nil when redis is not
// configured.
func (g *Guard) Queue() *dlq.Queue {
	return g.queue
}
