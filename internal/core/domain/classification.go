package domain

import "time"

// ErrorCategory groups failures by the kind of remediation they respond to.
type ErrorCategory string

const (
	CategoryTemporary      ErrorCategory = "temporary"
	CategoryRateLimited    ErrorCategory = "rate_limited"
	CategoryServerOverload ErrorCategory = "server_overload"
	CategoryAuthentication ErrorCategory = "authentication"
	CategoryPermanent      ErrorCategory = "permanent"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Classification is the verdict the classifier produces for one failure.
// SuggestedDelay seeds the backoff calculation; RecoveryActions are
// advisory labels, never executed by the classifier itself.
type Classification struct {
	Retryable         bool          `json:"retryable"`
	Category          ErrorCategory `json:"category"`
	Severity          Severity      `json:"severity"`
	SuggestedDelay    time.Duration `json:"suggested_delay_ms"`
	RecoveryActions   []string      `json:"recovery_actions"`
	CanSwitchStrategy bool          `json:"can_switch_strategy"`
}
