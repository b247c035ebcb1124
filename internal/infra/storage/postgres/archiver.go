package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/vietddude/bulwark/internal/core/domain"
	"github.com/vietddude/bulwark/internal/retry/metrics"
)

const (
	defaultBufferSize = 4096
	defaultFlushSize  = 64
	defaultInterval   = 5 * time.Second
)

// BatchWriter persists a batch of attempt records.
type BatchWriter interface {
	SaveBatch(ctx context.Context, recs []domain.AttemptRecord) error
}

// Archiver buffers attempt records and flushes them to storage in
// batches. It satisfies the journal sink contract: Record never blocks,
// so a slow database cannot stall the retry path.
type Archiver struct {
	// FlushSize is the batch size that triggers an immediate flush.
	FlushSize int
	// Interval is how often a partial batch is flushed anyway.
	Interval time.Duration
	// FlushRetryInterval seeds the backoff between failed flush attempts.
	FlushRetryInterval time.Duration
	// FlushRetryBudget bounds the total time spent retrying one batch
	// before it is dropped.
	FlushRetryBudget time.Duration

	writer BatchWriter
	buf    chan domain.AttemptRecord
	log    *slog.Logger
}

// NewArchiver creates an archiver writing to the given storage.
func NewArchiver(writer BatchWriter) *Archiver {
	return &Archiver{
		FlushSize:          defaultFlushSize,
		Interval:           defaultInterval,
		FlushRetryInterval: time.Second,
		FlushRetryBudget:   30 * time.Second,
		writer:             writer,
		buf:                make(chan domain.AttemptRecord, defaultBufferSize),
		log:                slog.Default().With("component", "archiver"),
	}
}

// Record enqueues one attempt record. Records are dropped when the
// buffer is full.
func (a *Archiver) Record(rec domain.AttemptRecord) {
	select {
	case a.buf <- rec:
		metrics.ArchiveBufferUsage.Set(float64(len(a.buf)))
	default:
		metrics.ArchiveDropped.Inc()
	}
}

// Run flushes buffered records until ctx is cancelled, then drains
// whatever is still buffered.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.Interval)
	defer ticker.Stop()

	batch := make([]domain.AttemptRecord, 0, a.FlushSize)
	for {
		select {
		case <-ctx.Done():
			a.drain(batch)
			return nil
		case rec := <-a.buf:
			batch = append(batch, rec)
			if len(batch) >= a.FlushSize {
				a.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(ctx, batch)
				batch = batch[:0]
			}
			metrics.ArchiveBufferUsage.Set(float64(len(a.buf)))
		}
	}
}

// flush writes one batch, retrying transient failures. The batch is
// dropped once the retry budget is spent.
func (a *Archiver) flush(ctx context.Context, batch []domain.AttemptRecord) {
	recs := make([]domain.AttemptRecord, len(batch))
	copy(recs, batch)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = a.FlushRetryInterval
	bo.MaxElapsedTime = a.FlushRetryBudget

	err := backoff.Retry(func() error {
		return a.writer.SaveBatch(ctx, recs)
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		metrics.ArchiveFlushFailures.Inc()
		a.log.Error("Dropping attempt batch after flush retries", "count", len(recs), "error", err)
		return
	}
	a.log.Debug("Archived attempt batch", "count", len(recs))
}

// drain performs a final best-effort flush at shutdown.
func (a *Archiver) drain(batch []domain.AttemptRecord) {
loop:
	for {
		select {
		case rec := <-a.buf:
			batch = append(batch, rec)
		default:
			break loop
		}
	}
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.writer.SaveBatch(ctx, batch); err != nil {
		metrics.ArchiveFlushFailures.Inc()
		a.log.Error("Failed to archive remaining attempts", "count", len(batch), "error", err)
		return
	}
	a.log.Info("Archived remaining attempts", "count", len(batch))
}
