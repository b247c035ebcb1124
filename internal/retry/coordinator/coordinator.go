// Package coordinator drives guarded invocations through admission,
// the attempt loop, classification, backoff and recovery.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/bulwark/internal/core/domain"
	"github.com/vietddude/bulwark/internal/retry/backoff"
	"github.com/vietddude/bulwark/internal/retry/breaker"
	"github.com/vietddude/bulwark/internal/retry/classify"
	"github.com/vietddude/bulwark/internal/retry/journal"
	"github.com/vietddude/bulwark/internal/retry/metrics"
	"github.com/vietddude/bulwark/internal/retry/recovery"
)

// ErrCircuitOpen is wrapped into the outcome when admission is refused.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Operation is one guarded unit of work. It must honor ctx: an attempt
// that outlives its deadline keeps running in the background but its
// result is discarded.
type Operation func(ctx context.Context) (any, error)

// ProgressFunc observes each finished attempt. Exactly one of result
// and err is set. Panics inside the callback are swallowed.
type ProgressFunc func(attempt int, result any, err error)

// Coordinator owns the retry state for one process: circuit breakers,
// the attempt journal and the delay calculator. One coordinator serves
// any number of destinations and concurrent invocations.
type Coordinator struct {
	cfg      Config
	breakers *breaker.Registry
	journal  *journal.Journal
	delays   *backoff.Calculator
	recovery *recovery.Executor
	log      *slog.Logger
}

func New(cfg Config) *Coordinator {
	cfg = cfg.withDefaults()
	breakers := breaker.NewRegistry(cfg.BreakerThreshold)
	hist := journal.New()
	return &Coordinator{
		cfg:      cfg,
		breakers: breakers,
		journal:  hist,
		delays: backoff.New(backoff.Config{
			BaseDelay:  cfg.BaseDelay,
			MaxDelay:   cfg.MaxDelay,
			Multiplier: cfg.BackoffMultiplier,
			Jitter:     cfg.JitterEnabled,
		}, breakers, hist),
		recovery: recovery.NewExecutor(),
		log:      slog.Default().With("component", "coordinator"),
	}
}

// SetSwitchCallback registers the consumer of strategy switch intents.
func (c *Coordinator) SetSwitchCallback(fn recovery.SwitchFunc) {
	c.recovery.SetSwitchCallback(fn)
}

// SetStateChangeCallback registers an observer for circuit transitions.
func (c *Coordinator) SetStateChangeCallback(fn breaker.StateChangeFunc) {
	c.breakers.SetStateChangeCallback(fn)
}

// Execute runs op under the full resilience pipeline and always returns
// an outcome: admission check, up to MaxAttempts attempts with
// per-attempt timeouts, classification and remediation between
// attempts, and emergency recovery once the invocation gives up.
func (c *Coordinator) Execute(ctx context.Context, op Operation, exec domain.ExecContext, onProgress ProgressFunc) domain.Outcome {
	log := c.log.With(
		"invocation", uuid.New().String(),
		"destination", exec.DestinationKey,
		"strategy", exec.StrategyLabel,
		"kind", exec.Kind)

	allowed, snap := c.breakers.Allow(exec.DestinationKey)
	if !allowed {
		metrics.RejectedTotal.WithLabelValues(exec.DestinationKey).Inc()
		err := fmt.Errorf("%w for %s, next attempt in %s",
			ErrCircuitOpen, exec.DestinationKey, time.Until(snap.NextAttemptTime).Round(time.Second))
		log.Warn("Invocation rejected", "error", err)
		return domain.Outcome{Err: err, Metrics: c.Metrics()}
	}

	var (
		lastErr      error
		attemptsMade int
		cumulative   time.Duration
	)

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return c.aborted(log, err, lastErr, attemptsMade)
		}

		start := time.Now()
		result, err := c.runAttempt(ctx, op)
		elapsed := time.Since(start)

		if err == nil {
			c.journal.Append(domain.AttemptRecord{
				Timestamp:       start,
				Attempt:         attempt,
				DestinationKey:  exec.DestinationKey,
				StrategyLabel:   exec.StrategyLabel,
				Kind:            exec.Kind,
				CumulativeDelay: cumulative,
				Success:         true,
				Elapsed:         elapsed,
			})
			c.breakers.RecordSuccess(exec.DestinationKey)
			metrics.AttemptsTotal.WithLabelValues(exec.DestinationKey, exec.StrategyLabel, "success").Inc()
			metrics.AttemptDuration.WithLabelValues(exec.DestinationKey, exec.StrategyLabel).Observe(elapsed.Seconds())
			c.safeProgress(onProgress, attempt, result, nil)
			log.Debug("Attempt succeeded", "attempt", attempt, "elapsed", elapsed)
			return domain.Outcome{
				Success:  true,
				Result:   result,
				Attempts: attempt,
				Metrics:  c.Metrics(),
			}
		}

		// An attempt cut down by caller cancellation is discarded, not
		// treated as an operation failure.
		if ctx.Err() != nil {
			return c.aborted(log, ctx.Err(), lastErr, attemptsMade)
		}

		lastErr = err
		attemptsMade = attempt
		cls := classify.Classify(err.Error())
		c.journal.Append(domain.AttemptRecord{
			Timestamp:       start,
			Attempt:         attempt,
			DestinationKey:  exec.DestinationKey,
			StrategyLabel:   exec.StrategyLabel,
			Kind:            exec.Kind,
			ErrorText:       err.Error(),
			Category:        cls.Category,
			CumulativeDelay: cumulative,
			Success:         false,
			Elapsed:         elapsed,
		})
		c.breakers.RecordFailure(exec.DestinationKey)
		metrics.AttemptsTotal.WithLabelValues(exec.DestinationKey, exec.StrategyLabel, "failure").Inc()
		metrics.AttemptDuration.WithLabelValues(exec.DestinationKey, exec.StrategyLabel).Observe(elapsed.Seconds())
		c.safeProgress(onProgress, attempt, nil, err)
		log.Warn("Attempt failed",
			"attempt", attempt,
			"category", cls.Category,
			"retryable", cls.Retryable,
			"error", err)

		if !cls.Retryable || attempt == c.cfg.MaxAttempts {
			break
		}

		delay := c.delays.Delay(attempt, cls, exec.DestinationKey)
		c.journal.RecordDelay(delay)
		metrics.RetryDelay.Observe(delay.Seconds())

		if actions := c.recovery.BetweenAttempts(ctx, cls, exec); len(actions) > 0 {
			log.Info("Recovery actions applied", "attempt", attempt, "actions", actions)
		}

		cumulative += delay
		log.Debug("Backing off", "attempt", attempt, "delay", delay)
		if err := sleep(ctx, delay); err != nil {
			return c.aborted(log, err, lastErr, attemptsMade)
		}
	}

	c.recovery.Emergency(ctx, exec)
	err := fmt.Errorf("failed after %d attempts: %w", attemptsMade, lastErr)
	log.Error("Invocation exhausted", "attempts", attemptsMade, "error", lastErr)
	return domain.Outcome{
		Err:      err,
		Attempts: attemptsMade,
		Metrics:  c.Metrics(),
	}
}

// runAttempt dispatches op on its own goroutine so a stuck operation
// cannot wedge the loop. Late results land in the buffered channel and
// are dropped.
func (c *Coordinator) runAttempt(ctx context.Context, op Operation) (any, error) {
	attemptCtx := ctx
	if c.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.cfg.AttemptTimeout)
		defer cancel()
	}

	type attemptResult struct {
		value any
		err   error
	}
	done := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attemptResult{err: fmt.Errorf("operation panicked: %v", r)}
			}
		}()
		value, err := op(attemptCtx)
		done <- attemptResult{value: value, err: err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-attemptCtx.Done():
		if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("operation timeout after %s", c.cfg.AttemptTimeout)
		}
		return nil, attemptCtx.Err()
	}
}

func (c *Coordinator) aborted(log *slog.Logger, cause, lastErr error, attemptsMade int) domain.Outcome {
	var err error
	if lastErr != nil {
		err = fmt.Errorf("retry aborted after %d attempts: %w (last error: %v)", attemptsMade, cause, lastErr)
	} else {
		err = fmt.Errorf("retry aborted: %w", cause)
	}
	log.Info("Invocation aborted", "attempts", attemptsMade, "cause", cause)
	return domain.Outcome{
		Err:      err,
		Attempts: attemptsMade,
		Metrics:  c.Metrics(),
	}
}

func (c *Coordinator) safeProgress(fn ProgressFunc, attempt int, result any, err error) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Progress callback panicked", "panic", r, "attempt", attempt)
		}
	}()
	fn(attempt, result, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
