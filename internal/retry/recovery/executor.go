// Package recovery applies remediations between attempts and a final
// emergency step when a guarded invocation is giving up.
package recovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/bulwark/internal/core/domain"
	"github.com/vietddude/bulwark/internal/retry/metrics"
)

// SwitchFunc receives strategy switch intents. The engine never rotates
// strategies itself; the owner of the strategy decides what to do.
type SwitchFunc func(exec domain.ExecContext, category domain.ErrorCategory)

const (
	// DefaultRateLimitPause is the extra pause after a rate limited
	// failure, on top of the computed backoff delay.
	DefaultRateLimitPause = 2 * time.Second
	// DefaultEmergencyPause is the settle pause taken by the emergency
	// step before the failure is reported.
	DefaultEmergencyPause = 5 * time.Second
)

// Executor runs remediations keyed by error category. Remediation never
// fails an invocation: pauses are cut short by context cancellation and
// a panicking switch callback is swallowed and logged.
type Executor struct {
	// Pause lengths are exposed so tests can shrink them; production
	// code leaves the defaults.
	RateLimitPause time.Duration
	EmergencyPause time.Duration

	onSwitch SwitchFunc
	log      *slog.Logger
}

func NewExecutor() *Executor {
	return &Executor{
		RateLimitPause: DefaultRateLimitPause,
		EmergencyPause: DefaultEmergencyPause,
		log:            slog.Default().With("component", "recovery"),
	}
}

// SetSwitchCallback registers the consumer of strategy switch intents.
// Set during wiring, before traffic flows.
func (e *Executor) SetSwitchCallback(fn SwitchFunc) {
	e.onSwitch = fn
}

// BetweenAttempts runs the remediation for one classified failure and
// returns labels describing what was applied.
func (e *Executor) BetweenAttempts(ctx context.Context, cls domain.Classification, exec domain.ExecContext) []string {
	var actions []string

	switch cls.Category {
	case domain.CategoryRateLimited:
		e.pause(ctx, e.RateLimitPause)
		actions = append(actions, "extended rate limit pause")

	case domain.CategoryServerOverload:
		if cls.CanSwitchStrategy {
			e.emitSwitch(exec, cls.Category)
			actions = append(actions, "switch strategy")
		} else {
			e.pause(ctx, cls.SuggestedDelay)
			actions = append(actions, "overload pause")
		}

	case domain.CategoryTemporary:
		if cls.CanSwitchStrategy {
			e.emitSwitch(exec, cls.Category)
			actions = append(actions, "switch strategy")
		}

	case domain.CategoryAuthentication:
		// Nothing to apply mid-loop; the advisory still surfaces in
		// logs and counters.
		actions = append(actions, "refresh authentication")
	}

	for _, a := range actions {
		metrics.RecoveryActions.WithLabelValues(a).Inc()
	}
	if len(actions) > 0 {
		e.log.Debug("Applied recovery actions",
			"destination", exec.DestinationKey,
			"category", cls.Category,
			"actions", actions)
	}
	return actions
}

// Emergency runs once when an invocation has exhausted its attempts:
// a settle pause plus advisory labels for the caller's fallback paths.
func (e *Executor) Emergency(ctx context.Context, exec domain.ExecContext) []string {
	e.pause(ctx, e.EmergencyPause)

	actions := []string{
		"attempt simplified extraction",
		"reduce data requirements",
		"use cached results if available",
	}
	for _, a := range actions {
		metrics.RecoveryActions.WithLabelValues(a).Inc()
	}
	e.log.Warn("Emergency recovery engaged",
		"destination", exec.DestinationKey,
		"strategy", exec.StrategyLabel,
		"actions", actions)
	return actions
}

func (e *Executor) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (e *Executor) emitSwitch(exec domain.ExecContext, category domain.ErrorCategory) {
	if e.onSwitch == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Switch callback panicked", "panic", r, "destination", exec.DestinationKey)
		}
	}()
	metrics.StrategySwitches.WithLabelValues(exec.DestinationKey).Inc()
	e.onSwitch(exec, category)
}
