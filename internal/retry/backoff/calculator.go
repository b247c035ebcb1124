// Package backoff computes delays between attempts.
//
// The delay is exponential over the attempt number, seeded by the
// classifier's suggested delay, scaled by a per-destination health
// multiplier and optionally jittered. Results are floored to whole
// milliseconds and clamped to [Floor, MaxDelay].
package backoff

import (
	"math"
	"math/rand"
	"time"

	"github.com/vietddude/bulwark/internal/core/domain"
	"github.com/vietddude/bulwark/internal/retry/breaker"
	"github.com/vietddude/bulwark/internal/retry/journal"
)

const (
	// DefaultFloor is the minimum delay between attempts.
	DefaultFloor = time.Second

	jitterBand    = 0.05
	historyWindow = 10
)

type Config struct {
	// BaseDelay seeds the exponential curve when the classifier did not
	// suggest a delay.
	BaseDelay time.Duration
	// MaxDelay caps every computed delay.
	MaxDelay time.Duration
	// Multiplier is the exponential growth factor per attempt.
	Multiplier float64
	// Jitter perturbs each delay by up to ±5% when set.
	Jitter bool
}

// Calculator derives inter-attempt delays. It reads the breaker registry
// and journal to penalize destinations that are already struggling.
type Calculator struct {
	// Floor is the minimum delay. Exposed so tests can shrink it;
	// production code leaves the default.
	Floor time.Duration

	cfg      Config
	breakers *breaker.Registry
	history  *journal.Journal
}

func New(cfg Config, breakers *breaker.Registry, history *journal.Journal) *Calculator {
	return &Calculator{
		Floor:    DefaultFloor,
		cfg:      cfg,
		breakers: breakers,
		history:  history,
	}
}

// Delay returns the pause before the attempt following attempt n.
// attempt is 1-based: the delay after the first failure uses the
// classifier's suggestion unscaled.
func (c *Calculator) Delay(attempt int, cls domain.Classification, key string) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	base := cls.SuggestedDelay
	if base <= 0 {
		base = c.cfg.BaseDelay
	}

	d := float64(base) * math.Pow(c.cfg.Multiplier, float64(attempt-1))
	d *= c.destinationMultiplier(key)
	if c.cfg.Jitter {
		d *= 1 + (rand.Float64()*2-1)*jitterBand
	}

	ms := math.Floor(d / float64(time.Millisecond))
	if floor := float64(c.Floor / time.Millisecond); ms < floor {
		ms = floor
	}
	if max := float64(c.cfg.MaxDelay / time.Millisecond); ms > max {
		ms = max
	}
	return time.Duration(ms) * time.Millisecond
}

// destinationMultiplier penalizes destinations that are already in
// trouble: 5x while their circuit is open, otherwise 3x or 2x based on
// the failure fraction across their last few journal entries. Fewer
// than three entries is not enough signal to penalize.
func (c *Calculator) destinationMultiplier(key string) float64 {
	if c.breakers.State(key).State == domain.BreakerOpen {
		return 5
	}

	recent := c.history.RecentForDestination(key, historyWindow)
	if len(recent) < 3 {
		return 1
	}
	failed := 0
	for _, rec := range recent {
		if !rec.Success {
			failed++
		}
	}
	frac := float64(failed) / float64(len(recent))
	switch {
	case frac > 0.7:
		return 3
	case frac > 0.4:
		return 2
	default:
		return 1
	}
}
