package classify

import (
	"testing"
	"time"

	"github.com/vietddude/bulwark/internal/core/domain"
)

// ===== Category Matching =====

func TestClassify_Categories(t *testing.T) {
	tests := []struct {
		name      string
		errText   string
		category  domain.ErrorCategory
		retryable bool
		delay     time.Duration
		switchOK  bool
	}{
		{"timeout", "operation timeout after 30s", domain.CategoryTemporary, true, 2 * time.Second, false},
		{"connection reset", "read tcp: connection reset by peer", domain.CategoryTemporary, true, 2 * time.Second, false},
		{"connection refused", "dial tcp 10.0.0.1:443: connection refused", domain.CategoryTemporary, true, 2 * time.Second, false},
		{"econnrefused", "request failed: ECONNREFUSED", domain.CategoryTemporary, true, 2 * time.Second, false},
		{"enotfound", "getaddrinfo ENOTFOUND example.com", domain.CategoryTemporary, true, 2 * time.Second, false},
		{"network", "network unreachable", domain.CategoryTemporary, true, 2 * time.Second, false},
		{"status 429", "example.com returned 429 Too Many Requests", domain.CategoryRateLimited, true, 10 * time.Second, true},
		{"rate limit text", "rate limit exceeded, slow down", domain.CategoryRateLimited, true, 10 * time.Second, true},
		{"status 500", "upstream returned 500 Internal Server Error", domain.CategoryServerOverload, true, 5 * time.Second, false},
		{"status 502", "bad gateway 502", domain.CategoryServerOverload, true, 5 * time.Second, false},
		{"status 503", "503 service unavailable", domain.CategoryServerOverload, true, 5 * time.Second, false},
		{"status 504", "upstream replied 504", domain.CategoryServerOverload, true, 5 * time.Second, false},
		{"server error text", "internal server error", domain.CategoryServerOverload, true, 5 * time.Second, false},
		{"status 401", "401 unauthorized", domain.CategoryAuthentication, false, 0, false},
		{"status 403", "403 Forbidden", domain.CategoryAuthentication, false, 0, false},
		{"forbidden text", "access forbidden by policy", domain.CategoryAuthentication, false, 0, false},
		{"status 404", "404 Not Found", domain.CategoryPermanent, false, 0, false},
		{"not found text", "page not found", domain.CategoryPermanent, false, 0, false},
		{"captcha", "captcha challenge presented", domain.CategoryServerOverload, true, 15 * time.Second, true},
		{"blocked", "request blocked by upstream", domain.CategoryServerOverload, true, 15 * time.Second, true},
		{"suspicious", "suspicious activity detected", domain.CategoryServerOverload, true, 15 * time.Second, true},
		{"bot detected", "bot detected, access denied", domain.CategoryServerOverload, true, 15 * time.Second, true},
		{"unknown", "something inexplicable happened", domain.CategoryTemporary, true, 3 * time.Second, true},
		{"empty", "", domain.CategoryTemporary, true, 3 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.errText)
			if got.Category != tt.category {
				t.Errorf("category = %s, want %s", got.Category, tt.category)
			}
			if got.Retryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", got.Retryable, tt.retryable)
			}
			if got.SuggestedDelay != tt.delay {
				t.Errorf("suggested delay = %s, want %s", got.SuggestedDelay, tt.delay)
			}
			if got.CanSwitchStrategy != tt.switchOK {
				t.Errorf("can switch = %v, want %v", got.CanSwitchStrategy, tt.switchOK)
			}
		})
	}
}

// ===== Rule Ordering =====

func TestClassify_AuthWinsOverAntiAutomation(t *testing.T) {
	// "403" appears in both the authentication and anti-automation token
	// sets; the earlier rule must claim it even when anti-automation
	// tokens are also present.
	got := Classify("403 forbidden: captcha required")
	if got.Category != domain.CategoryAuthentication {
		t.Errorf("category = %s, want %s", got.Category, domain.CategoryAuthentication)
	}
	if got.Retryable {
		t.Error("authentication failures must not be retryable")
	}
}

func TestClassify_NetworkWinsOverRateLimit(t *testing.T) {
	got := Classify("timeout while waiting for rate limit reset")
	if got.Category != domain.CategoryTemporary {
		t.Errorf("category = %s, want %s", got.Category, domain.CategoryTemporary)
	}
}

func TestClassify_TimeoutTokenWinsOver504(t *testing.T) {
	// "504 Gateway Timeout" carries a timeout token, and the network
	// rule precedes the overload rule.
	got := Classify("504 Gateway Timeout")
	if got.Category != domain.CategoryTemporary {
		t.Errorf("category = %s, want %s", got.Category, domain.CategoryTemporary)
	}
}

// ===== Matching Semantics =====

func TestClassify_CaseInsensitive(t *testing.T) {
	upper := Classify("CONNECTION RESET BY PEER")
	lower := Classify("connection reset by peer")
	if upper.Category != lower.Category {
		t.Errorf("case changed the verdict: %s vs %s", upper.Category, lower.Category)
	}
}

func TestClassify_ReturnsFreshActions(t *testing.T) {
	first := Classify("429")
	first.RecoveryActions[0] = "mutated"

	second := Classify("429")
	if second.RecoveryActions[0] == "mutated" {
		t.Error("verdicts share recovery action storage across calls")
	}
}

func TestClassify_AuthSuggestsRefresh(t *testing.T) {
	got := Classify("401 unauthorized")
	if len(got.RecoveryActions) == 0 || got.RecoveryActions[0] != "refresh authentication" {
		t.Errorf("recovery actions = %v, want refresh authentication first", got.RecoveryActions)
	}
}
