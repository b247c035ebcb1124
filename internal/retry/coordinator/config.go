package coordinator

import "time"

// Config tunes one coordinator. Zero or out-of-range fields are
// replaced with the matching DefaultConfig value at construction.
type Config struct {
	// MaxAttempts bounds the attempt loop, first try included.
	MaxAttempts int
	// BaseDelay seeds backoff when the classifier has no suggestion.
	BaseDelay time.Duration
	// MaxDelay caps every computed backoff delay.
	MaxDelay time.Duration
	// BackoffMultiplier is the exponential growth factor per attempt.
	BackoffMultiplier float64
	// JitterEnabled perturbs delays by up to ±5%.
	JitterEnabled bool
	// BreakerThreshold is the failure count that opens a circuit.
	BreakerThreshold int
	// AttemptTimeout bounds each individual attempt. Zero disables the
	// per-attempt deadline; the caller's context still applies.
	AttemptTimeout time.Duration
}

var DefaultConfig = Config{
	MaxAttempts:       3,
	BaseDelay:         3 * time.Second,
	MaxDelay:          60 * time.Second,
	BackoffMultiplier: 2.0,
	JitterEnabled:     true,
	BreakerThreshold:  5,
	AttemptTimeout:    30 * time.Second,
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultConfig.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultConfig.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultConfig.MaxDelay
	}
	if c.BackoffMultiplier <= 1 {
		c.BackoffMultiplier = DefaultConfig.BackoffMultiplier
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = DefaultConfig.BreakerThreshold
	}
	if c.AttemptTimeout < 0 {
		c.AttemptTimeout = 0
	}
	return c
}
