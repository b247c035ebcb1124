package introspect

import "github.com/vietddude/bulwark/internal/core/domain"

type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// statusSampleFloor is the attempt count below which failure rates are
// too noisy to judge.
const statusSampleFloor = 10

// deriveStatus grades the system: any open circuit or a failure rate
// above one half is critical, elevated failure rates or repeated
// breaker trips degrade, everything else is healthy.
func deriveStatus(m domain.Metrics, breakers map[string]domain.BreakerSnapshot) SystemStatus {
	for _, b := range breakers {
		if b.State == domain.BreakerOpen {
			return StatusCritical
		}
	}

	if m.TotalAttempts >= statusSampleFloor {
		switch rate := m.FailureRate(); {
		case rate > 0.5:
			return StatusCritical
		case rate > 0.2:
			return StatusDegraded
		}
	}

	if m.BreakerTrips > 3 {
		return StatusDegraded
	}
	return StatusHealthy
}
