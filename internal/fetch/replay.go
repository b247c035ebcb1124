package fetch

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/vietddude/bulwark/internal/core/domain"
	"github.com/vietddude/bulwark/internal/infra/dlq"
	"github.com/vietddude/bulwark/internal/retry/metrics"
)

// ReplayQueue is the slice of the dead letter queue the replay worker
// needs.
type ReplayQueue interface {
	PopDue(ctx context.Context, now time.Time) (*dlq.Entry, bool, error)
	Reschedule(ctx context.Context, e *dlq.Entry) error
	Resolve(ctx context.Context, id string) error
	Depth(ctx context.Context) (int64, error)
}

type ReplayConfig struct {
	// Interval is how often the queue is swept for due entries.
	Interval time.Duration
	// MaxReplays is how many failed replays an entry gets before it is
	// abandoned.
	MaxReplays int
}

var DefaultReplayConfig = ReplayConfig{
	Interval:   30 * time.Second,
	MaxReplays: 5,
}

// maxPerSweep bounds how many entries one sweep replays so a deep
// queue cannot monopolize the worker.
const maxPerSweep = 10

// ReplayWorker periodically re-fetches parked entries. Successes leave
// the queue; failures are rescheduled with a growing delay until their
// replay budget runs out.
type ReplayWorker struct {
	cfg   ReplayConfig
	queue ReplayQueue
	svc   *Service
	log   *slog.Logger
}

func NewReplayWorker(cfg ReplayConfig, queue ReplayQueue, svc *Service) *ReplayWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultReplayConfig.Interval
	}
	if cfg.MaxReplays <= 0 {
		cfg.MaxReplays = DefaultReplayConfig.MaxReplays
	}
	return &ReplayWorker{
		cfg:   cfg,
		queue: queue,
		svc:   svc,
		log:   slog.Default().With("component", "replay"),
	}
}

// Run sweeps the queue until ctx is cancelled.
func (w *ReplayWorker) Run(ctx context.Context) error {
	w.log.Info("Replay worker started", "interval", w.cfg.Interval, "max_replays", w.cfg.MaxReplays)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Replay worker stopped")
			return nil
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ReplayWorker) sweep(ctx context.Context) {
	for i := 0; i < maxPerSweep; i++ {
		if ctx.Err() != nil {
			return
		}
		entry, ok, err := w.queue.PopDue(ctx, time.Now())
		if err != nil {
			w.log.Error("Failed to pop dead letter", "error", err)
			return
		}
		if !ok {
			break
		}
		w.replay(ctx, entry)
	}

	if depth, err := w.queue.Depth(ctx); err == nil {
		metrics.DLQDepth.Set(float64(depth))
	}
}

func (w *ReplayWorker) replay(ctx context.Context, e *dlq.Entry) {
	_, outcome := w.svc.Replay(ctx, e.URL, domain.OperationKind(e.Kind))
	if outcome.Success {
		metrics.DLQReplays.WithLabelValues("resolved").Inc()
		if err := w.queue.Resolve(ctx, e.ID); err != nil {
			w.log.Error("Failed to resolve dead letter", "id", e.ID, "error", err)
			return
		}
		w.log.Info("Dead letter replayed", "url", e.URL, "replays", e.ReplayCount)
		return
	}

	e.ReplayCount++
	e.LastFailedAt = time.Now()
	e.Error = outcome.Error()

	if e.ReplayCount >= w.cfg.MaxReplays {
		metrics.DLQReplays.WithLabelValues("abandoned").Inc()
		if err := w.queue.Resolve(ctx, e.ID); err != nil {
			w.log.Error("Failed to drop dead letter", "id", e.ID, "error", err)
			return
		}
		w.log.Warn("Dead letter abandoned",
			"url", e.URL,
			"replays", e.ReplayCount,
			"error", e.Error)
		return
	}

	e.NextRetryAt = time.Now().Add(replayDelay(e.ReplayCount))
	if err := w.queue.Reschedule(ctx, e); err != nil {
		w.log.Error("Failed to reschedule dead letter", "id", e.ID, "error", err)
		return
	}
	w.log.Info("Dead letter rescheduled",
		"url", e.URL,
		"replays", e.ReplayCount,
		"next_retry_at", e.NextRetryAt)
}

// replayDelay doubles per failed replay, from one minute up to an hour.
func replayDelay(replays int) time.Duration {
	d := time.Duration(float64(time.Minute) * math.Pow(2, float64(replays)))
	if d > time.Hour {
		return time.Hour
	}
	return d
}
