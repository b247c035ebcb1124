// Package classify maps raw error text onto retry verdicts.
//
// Classification is ordered substring matching over the lowered error
// text. Rule order is part of the contract: authentication failures
// must win over anti-automation failures even though both lists carry
// a "403" token, and the default rule only applies when nothing else
// matched.
package classify

import (
	"strings"
	"time"

	"github.com/vietddude/bulwark/internal/core/domain"
)

type rule struct {
	tokens  []string
	verdict domain.Classification
}

var rules = []rule{
	{
		tokens: []string{"network", "timeout", "connection reset", "connection refused", "econnrefused", "enotfound"},
		verdict: domain.Classification{
			Retryable:         true,
			Category:          domain.CategoryTemporary,
			Severity:          domain.SeverityMedium,
			SuggestedDelay:    2000 * time.Millisecond,
			RecoveryActions:   []string{"pause briefly", "verify connectivity"},
			CanSwitchStrategy: false,
		},
	},
	{
		tokens: []string{"429", "rate limit", "too many requests"},
		verdict: domain.Classification{
			Retryable:         true,
			Category:          domain.CategoryRateLimited,
			Severity:          domain.SeverityMedium,
			SuggestedDelay:    10000 * time.Millisecond,
			RecoveryActions:   []string{"apply extended backoff", "rotate client identity"},
			CanSwitchStrategy: true,
		},
	},
	{
		tokens: []string{"500", "502", "503", "504", "server error"},
		verdict: domain.Classification{
			Retryable:         true,
			Category:          domain.CategoryServerOverload,
			Severity:          domain.SeverityHigh,
			SuggestedDelay:    5000 * time.Millisecond,
			RecoveryActions:   []string{"pause for recovery", "reduce request rate"},
			CanSwitchStrategy: false,
		},
	},
	{
		tokens: []string{"401", "403", "unauthorized", "forbidden"},
		verdict: domain.Classification{
			Retryable:         false,
			Category:          domain.CategoryAuthentication,
			Severity:          domain.SeverityHigh,
			SuggestedDelay:    0,
			RecoveryActions:   []string{"refresh authentication"},
			CanSwitchStrategy: false,
		},
	},
	{
		tokens: []string{"404", "not found"},
		verdict: domain.Classification{
			Retryable:         false,
			Category:          domain.CategoryPermanent,
			Severity:          domain.SeverityLow,
			SuggestedDelay:    0,
			RecoveryActions:   []string{"verify destination address"},
			CanSwitchStrategy: false,
		},
	},
	{
		// The "403" token never matches here: the authentication rule
		// above claims it first. Kept for parity with the historical
		// token set.
		tokens: []string{"captcha", "blocked", "suspicious", "bot detected", "403"},
		verdict: domain.Classification{
			Retryable:         true,
			Category:          domain.CategoryServerOverload,
			Severity:          domain.SeverityHigh,
			SuggestedDelay:    15000 * time.Millisecond,
			RecoveryActions:   []string{"switch strategy", "rotate client identity", "apply extended backoff"},
			CanSwitchStrategy: true,
		},
	},
}

var defaultVerdict = domain.Classification{
	Retryable:         true,
	Category:          domain.CategoryTemporary,
	Severity:          domain.SeverityMedium,
	SuggestedDelay:    3000 * time.Millisecond,
	RecoveryActions:   []string{"retry with backoff"},
	CanSwitchStrategy: true,
}

// Classify returns the verdict for one failure's error text. Matching is
// case-insensitive and the first matching rule wins. The returned value
// is a fresh copy; callers may mutate it freely.
func Classify(errText string) domain.Classification {
	lower := strings.ToLower(errText)
	for _, r := range rules {
		for _, tok := range r.tokens {
			if strings.Contains(lower, tok) {
				return copyVerdict(r.verdict)
			}
		}
	}
	return copyVerdict(defaultVerdict)
}

func copyVerdict(v domain.Classification) domain.Classification {
	out := v
	out.RecoveryActions = append([]string(nil), v.RecoveryActions...)
	return out
}
