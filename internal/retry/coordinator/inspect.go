package coordinator

import (
	"github.com/vietddude/bulwark/internal/core/domain"
	"github.com/vietddude/bulwark/internal/retry/backoff"
	"github.com/vietddude/bulwark/internal/retry/breaker"
	"github.com/vietddude/bulwark/internal/retry/journal"
	"github.com/vietddude/bulwark/internal/retry/recovery"
)

// Metrics returns the aggregate snapshot: journal tallies plus the
// breaker trip count, taken together.
func (c *Coordinator) Metrics() domain.Metrics {
	return c.journal.Snapshot(c.breakers.TripCount())
}

// RecentAttempts returns up to n journal records, newest first.
func (c *Coordinator) RecentAttempts(n int) []domain.AttemptRecord {
	return c.journal.Recent(n)
}

// BreakerState snapshots the circuit for one destination.
func (c *Coordinator) BreakerState(key string) domain.BreakerSnapshot {
	return c.breakers.State(key)
}

// BreakerStates snapshots every destination seen so far.
func (c *Coordinator) BreakerStates() map[string]domain.BreakerSnapshot {
	return c.breakers.States()
}

// Recommendations derives operator guidance from the current snapshot.
func (c *Coordinator) Recommendations() []string {
	return journal.Recommendations(c.Metrics())
}

// Reset clears the journal, all circuits and the trip counter. Sinks
// and callbacks stay registered.
func (c *Coordinator) Reset() {
	c.journal.Reset()
	c.breakers.Reset()
	c.log.Info("Coordinator state reset")
}

// Journal exposes the attempt journal for sink registration.
func (c *Coordinator) Journal() *journal.Journal {
	return c.journal
}

// Breakers exposes the circuit registry.
func (c *Coordinator) Breakers() *breaker.Registry {
	return c.breakers
}

// Calculator exposes the delay calculator.
func (c *Coordinator) Calculator() *backoff.Calculator {
	return c.delays
}

// Recovery exposes the recovery executor.
func (c *Coordinator) Recovery() *recovery.Executor {
	return c.recovery
}
