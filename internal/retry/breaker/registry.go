// Package breaker tracks per-destination circuit state.
//
// Each destination moves between closed, open and half_open. Only the
// closed state trips: once half_open, further failures keep the circuit
// half_open and admission continues while successes work the failure
// count back down to zero.
package breaker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/bulwark/internal/core/domain"
	"github.com/vietddude/bulwark/internal/retry/metrics"
)

// DefaultCooldown is how long an open circuit blocks admission before
// the next caller is let through as a half_open probe.
const DefaultCooldown = 60 * time.Second

// StateChangeFunc observes circuit transitions. Callbacks run outside
// the registry locks and must not block.
type StateChangeFunc func(key string, from, to domain.BreakerState)

type circuit struct {
	mu              sync.Mutex
	state           domain.BreakerState
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	nextAttemptTime time.Time
}

// Registry holds one circuit per destination key, created on first use.
type Registry struct {
	// Cooldown is the open-state block duration. Exposed so tests can
	// shrink it; production code leaves the default.
	Cooldown time.Duration

	mu        sync.RWMutex
	circuits  map[string]*circuit
	threshold int
	trips     int

	onStateChange StateChangeFunc
	log           *slog.Logger
}

// NewRegistry returns a registry that opens a circuit after threshold
// consecutive-ish failures (successes decrement the count rather than
// clearing it).
func NewRegistry(threshold int) *Registry {
	if threshold <= 0 {
		threshold = 5
	}
	return &Registry{
		Cooldown:  DefaultCooldown,
		circuits:  make(map[string]*circuit),
		threshold: threshold,
		log:       slog.Default().With("component", "breaker"),
	}
}

// SetStateChangeCallback registers an observer for circuit transitions.
// Set during wiring, before traffic flows.
func (r *Registry) SetStateChangeCallback(fn StateChangeFunc) {
	r.onStateChange = fn
}

func (r *Registry) get(key string) *circuit {
	r.mu.RLock()
	c, ok := r.circuits[key]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.circuits[key]; ok {
		return c
	}
	c = &circuit{state: domain.BreakerClosed}
	r.circuits[key] = c
	return c
}

// Allow reports whether an invocation against key may proceed, moving
// an open circuit to half_open once its cooldown has elapsed. The
// check and any transition happen atomically per destination.
func (r *Registry) Allow(key string) (bool, domain.BreakerSnapshot) {
	c := r.get(key)

	c.mu.Lock()
	var transition *domain.BreakerState
	allowed := true
	if c.state == domain.BreakerOpen {
		if !time.Now().Before(c.nextAttemptTime) {
			c.state = domain.BreakerHalfOpen
			to := domain.BreakerHalfOpen
			transition = &to
		} else {
			allowed = false
		}
	}
	snap := c.snapshotLocked(key)
	c.mu.Unlock()

	if transition != nil {
		r.announce(key, domain.BreakerOpen, *transition)
	}
	return allowed, snap
}

// RecordSuccess counts a successful attempt. Failure pressure decays by
// one per success and the circuit closes once it reaches zero.
func (r *Registry) RecordSuccess(key string) {
	c := r.get(key)

	c.mu.Lock()
	from := c.state
	c.successCount++
	if c.failureCount > 0 {
		c.failureCount--
	}
	if c.state != domain.BreakerClosed && c.failureCount == 0 {
		c.state = domain.BreakerClosed
		c.nextAttemptTime = time.Time{}
	}
	to := c.state
	c.mu.Unlock()

	if from != to {
		r.announce(key, from, to)
	}
}

// RecordFailure counts a failed attempt. Only a closed circuit trips;
// a half_open circuit absorbs failures without reopening.
func (r *Registry) RecordFailure(key string) {
	c := r.get(key)

	c.mu.Lock()
	from := c.state
	c.failureCount++
	c.lastFailureTime = time.Now()
	if c.state == domain.BreakerClosed && c.failureCount >= r.threshold {
		c.state = domain.BreakerOpen
		c.nextAttemptTime = time.Now().Add(r.Cooldown)
	}
	to := c.state
	c.mu.Unlock()

	if from != to {
		r.mu.Lock()
		r.trips++
		r.mu.Unlock()
		metrics.BreakerTrips.Inc()
		r.announce(key, from, to)
	}
}

// State returns a snapshot for one destination without creating it.
func (r *Registry) State(key string) domain.BreakerSnapshot {
	r.mu.RLock()
	c, ok := r.circuits[key]
	r.mu.RUnlock()
	if !ok {
		return domain.BreakerSnapshot{DestinationKey: key, State: domain.BreakerClosed}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(key)
}

// States snapshots every known destination.
func (r *Registry) States() map[string]domain.BreakerSnapshot {
	r.mu.RLock()
	keys := make([]string, 0, len(r.circuits))
	for k := range r.circuits {
		keys = append(keys, k)
	}
	r.mu.RUnlock()

	out := make(map[string]domain.BreakerSnapshot, len(keys))
	for _, k := range keys {
		out[k] = r.State(k)
	}
	return out
}

// TripCount returns how many times any circuit has opened since the
// last reset.
func (r *Registry) TripCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.trips
}

// Reset drops all circuits and zeroes the trip counter.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.circuits = make(map[string]*circuit)
	r.trips = 0
	r.mu.Unlock()
	r.log.Info("Circuit breakers reset")
}

func (c *circuit) snapshotLocked(key string) domain.BreakerSnapshot {
	return domain.BreakerSnapshot{
		DestinationKey:  key,
		State:           c.state,
		FailureCount:    c.failureCount,
		SuccessCount:    c.successCount,
		LastFailureTime: c.lastFailureTime,
		NextAttemptTime: c.nextAttemptTime,
	}
}

func (r *Registry) announce(key string, from, to domain.BreakerState) {
	metrics.BreakerState.WithLabelValues(key).Set(stateValue(to))
	logFn := r.log.Info
	if to == domain.BreakerOpen {
		logFn = r.log.Warn
	}
	logFn("Circuit state changed",
		"destination", key,
		"from", from,
		"to", to)
	if r.onStateChange != nil {
		r.onStateChange(key, from, to)
	}
}

func stateValue(s domain.BreakerState) float64 {
	switch s {
	case domain.BreakerOpen:
		return 2
	case domain.BreakerHalfOpen:
		return 1
	default:
		return 0
	}
}
