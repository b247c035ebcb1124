package domain

import "time"

// Metrics is an aggregate snapshot derived from the attempt journal.
// Counters cover the whole process lifetime, not just the retained window.
type Metrics struct {
	TotalAttempts     int                   `json:"total_attempts"`
	SuccessfulRuns    int                   `json:"successful_runs"`
	FailedRuns        int                   `json:"failed_runs"`
	RecoverySuccesses int                   `json:"recovery_successes"`
	ErrorsByCategory  map[ErrorCategory]int `json:"errors_by_category"`
	StrategyRates     map[string]float64    `json:"strategy_rates"`
	AverageDelay      time.Duration         `json:"average_delay_ms"`
	BreakerTrips      int                   `json:"breaker_trips"`
}

// FailureRate is failed attempts over total attempts, 0 when idle.
func (m Metrics) FailureRate() float64 {
	if m.TotalAttempts == 0 {
		return 0
	}
	return float64(m.FailedRuns) / float64(m.TotalAttempts)
}
