// Package journal retains recent attempt history and lifetime aggregates.
package journal

import (
	"sync"
	"time"

	"github.com/vietddude/bulwark/internal/core/domain"
)

// Capacity is the retained window. Older records are evicted but stay
// reflected in the lifetime counters.
const Capacity = 1000

// Sink receives every appended record, after it has been retained.
// Implementations must return promptly; slow consumers buffer internally.
type Sink interface {
	Record(rec domain.AttemptRecord)
}

// Journal is an in-memory ring of attempt records plus incrementally
// maintained aggregates. Safe for concurrent use.
type Journal struct {
	mu                sync.RWMutex
	records           []domain.AttemptRecord
	totalAttempts     int
	successfulRuns    int
	failedRuns        int
	recoverySuccesses int
	errorsByCategory  map[domain.ErrorCategory]int
	delaySum          time.Duration
	delayCount        int
	sinks             []Sink
}

func New() *Journal {
	return &Journal{
		records:          make([]domain.AttemptRecord, 0, Capacity),
		errorsByCategory: make(map[domain.ErrorCategory]int),
	}
}

// AddSink registers a consumer for appended records. Register sinks
// during wiring, before traffic flows.
func (j *Journal) AddSink(s Sink) {
	j.mu.Lock()
	j.sinks = append(j.sinks, s)
	j.mu.Unlock()
}

// Append records one attempt, evicting the oldest entry once the window
// is full. A success on attempt > 1 counts as a recovery success.
func (j *Journal) Append(rec domain.AttemptRecord) {
	j.mu.Lock()
	j.totalAttempts++
	if rec.Success {
		j.successfulRuns++
		if rec.Attempt > 1 {
			j.recoverySuccesses++
		}
	} else {
		j.failedRuns++
		if rec.Category != "" {
			j.errorsByCategory[rec.Category]++
		}
	}

	j.records = append(j.records, rec)
	if len(j.records) > Capacity {
		j.records = j.records[1:]
	}
	sinks := j.sinks
	j.mu.Unlock()

	for _, s := range sinks {
		s.Record(rec)
	}
}

// RecordDelay folds one computed backoff delay into the running average.
func (j *Journal) RecordDelay(d time.Duration) {
	j.mu.Lock()
	j.delaySum += d
	j.delayCount++
	j.mu.Unlock()
}

// Recent returns up to n records, newest first.
func (j *Journal) Recent(n int) []domain.AttemptRecord {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if n <= 0 || n > len(j.records) {
		n = len(j.records)
	}
	out := make([]domain.AttemptRecord, n)
	for i := 0; i < n; i++ {
		out[i] = j.records[len(j.records)-1-i]
	}
	return out
}

// RecentForDestination returns up to n records for one destination,
// newest first.
func (j *Journal) RecentForDestination(key string, n int) []domain.AttemptRecord {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]domain.AttemptRecord, 0, n)
	for i := len(j.records) - 1; i >= 0 && len(out) < n; i-- {
		if j.records[i].DestinationKey == key {
			out = append(out, j.records[i])
		}
	}
	return out
}

// Len returns how many records are currently retained.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.records)
}

// Snapshot assembles an aggregate view. Lifetime counters come from the
// incremental tallies; per-strategy rates are recomputed from the
// retained window on every call. breakerTrips is supplied by the caller
// so one snapshot carries both journal and breaker telemetry.
func (j *Journal) Snapshot(breakerTrips int) domain.Metrics {
	j.mu.RLock()
	defer j.mu.RUnlock()

	categories := make(map[domain.ErrorCategory]int, len(j.errorsByCategory))
	for k, v := range j.errorsByCategory {
		categories[k] = v
	}

	type tally struct{ attempts, successes int }
	byStrategy := make(map[string]tally)
	for _, rec := range j.records {
		t := byStrategy[rec.StrategyLabel]
		t.attempts++
		if rec.Success {
			t.successes++
		}
		byStrategy[rec.StrategyLabel] = t
	}
	rates := make(map[string]float64, len(byStrategy))
	for label, t := range byStrategy {
		rates[label] = float64(t.successes) / float64(t.attempts)
	}

	var avg time.Duration
	if j.delayCount > 0 {
		avg = j.delaySum / time.Duration(j.delayCount)
	}

	return domain.Metrics{
		TotalAttempts:     j.totalAttempts,
		SuccessfulRuns:    j.successfulRuns,
		FailedRuns:        j.failedRuns,
		RecoverySuccesses: j.recoverySuccesses,
		ErrorsByCategory:  categories,
		StrategyRates:     rates,
		AverageDelay:      avg,
		BreakerTrips:      breakerTrips,
	}
}

// Reset clears the retained window and all aggregates. Sinks stay
// registered.
func (j *Journal) Reset() {
	j.mu.Lock()
	j.records = j.records[:0]
	j.totalAttempts = 0
	j.successfulRuns = 0
	j.failedRuns = 0
	j.recoverySuccesses = 0
	j.errorsByCategory = make(map[domain.ErrorCategory]int)
	j.delaySum = 0
	j.delayCount = 0
	j.mu.Unlock()
}
