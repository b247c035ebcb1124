package journal

import (
	"fmt"
	"sort"

	"github.com/vietddude/bulwark/internal/core/domain"
)

const (
	categoryNoiseFloor  = 10
	weakStrategyRate    = 0.3
	excessiveTripsLimit = 3
)

// Recommendations derives operator guidance from an aggregate snapshot:
// a dominant error category seen more than ten times, strategies
// succeeding less than 30% of the time, and more than three breaker
// trips each produce one message. An empty slice means nothing stands
// out.
func Recommendations(m domain.Metrics) []string {
	var out []string

	if cat, count := dominantCategory(m.ErrorsByCategory); count > categoryNoiseFloor {
		out = append(out, categoryAdvice(cat, count))
	}

	labels := make([]string, 0, len(m.StrategyRates))
	for label := range m.StrategyRates {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		if rate := m.StrategyRates[label]; rate < weakStrategyRate {
			out = append(out, fmt.Sprintf("strategy %q succeeds %.0f%% of the time, consider dropping it from rotation", label, rate*100))
		}
	}

	if m.BreakerTrips > excessiveTripsLimit {
		out = append(out, fmt.Sprintf("circuit breakers tripped %d times, upstreams are saturated or blocking", m.BreakerTrips))
	}

	return out
}

func dominantCategory(counts map[domain.ErrorCategory]int) (domain.ErrorCategory, int) {
	var best domain.ErrorCategory
	bestCount := 0
	for cat, n := range counts {
		if n > bestCount || (n == bestCount && cat < best) {
			best = cat
			bestCount = n
		}
	}
	return best, bestCount
}

func categoryAdvice(cat domain.ErrorCategory, count int) string {
	switch cat {
	case domain.CategoryRateLimited:
		return fmt.Sprintf("rate limiting dominates (%d errors), lower concurrency or extend delays", count)
	case domain.CategoryServerOverload:
		return fmt.Sprintf("server overload or anti-automation pushback dominates (%d errors), rotate strategies and spread load", count)
	case domain.CategoryAuthentication:
		return fmt.Sprintf("authentication failures dominate (%d errors), refresh credentials before retrying", count)
	case domain.CategoryPermanent:
		return fmt.Sprintf("permanent failures dominate (%d errors), audit destinations for dead targets", count)
	default:
		return fmt.Sprintf("transient network failures dominate (%d errors), check connectivity and DNS health", count)
	}
}
