package introspect

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vietddude/bulwark/internal/core/domain"
	"github.com/vietddude/bulwark/internal/fetch"
	"github.com/vietddude/bulwark/internal/retry/coordinator"
)

func newTestServer() (*Server, *coordinator.Coordinator, *fetch.Service) {
	coord := coordinator.New(coordinator.Config{
		MaxAttempts:       2,
		BaseDelay:         5 * time.Millisecond,
		MaxDelay:          10 * time.Millisecond,
		BackoffMultiplier: 2,
		JitterEnabled:     false,
		BreakerThreshold:  100,
		AttemptTimeout:    time.Second,
	})
	coord.Calculator().Floor = time.Millisecond
	coord.Recovery().RateLimitPause = time.Millisecond
	coord.Recovery().EmergencyPause = time.Millisecond
	fetcher := fetch.NewService(coord, fetch.Config{})
	return NewServer(0, coord, fetcher), coord, fetcher
}

func runOp(coord *coordinator.Coordinator, errText string) {
	coord.Execute(context.Background(), func(ctx context.Context) (any, error) {
		if errText != "" {
			return nil, errors.New(errText)
		}
		return "ok", nil
	}, domain.ExecContext{DestinationKey: "example.com", StrategyLabel: "default", Kind: domain.KindFetch}, nil)
}

// ===== Health =====

func TestHandleHealth_Healthy(t *testing.T) {
	s, coord, _ := newTestServer()
	runOp(coord, "")

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body["status"] != string(StatusHealthy) {
		t.Errorf("status = %q, want healthy", body["status"])
	}
}

func TestHandleHealth_CriticalWhenBreakerOpen(t *testing.T) {
	s, coord, _ := newTestServer()
	for i := 0; i < 100; i++ {
		coord.Breakers().RecordFailure("example.com")
	}

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), string(StatusCritical)) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

// ===== Status =====

func TestHandleStatus_Report(t *testing.T) {
	s, coord, _ := newTestServer()
	runOp(coord, "")
	runOp(coord, "404 not found")

	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	var report StatusReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if report.Metrics.TotalAttempts != 2 {
		t.Errorf("total attempts = %d, want 2", report.Metrics.TotalAttempts)
	}
	if report.Metrics.ErrorsByCategory[domain.CategoryPermanent] != 1 {
		t.Errorf("categories = %+v", report.Metrics.ErrorsByCategory)
	}
	if _, ok := report.Breakers["example.com"]; !ok {
		t.Error("breaker snapshot missing")
	}
}

// ===== Attempts =====

func TestHandleAttempts_LimitAndOrder(t *testing.T) {
	s, coord, _ := newTestServer()
	runOp(coord, "")
	runOp(coord, "404 not found")

	rec := httptest.NewRecorder()
	s.handleAttempts(rec, httptest.NewRequest(http.MethodGet, "/attempts?limit=1", nil))

	var body struct {
		Count    int                    `json:"count"`
		Attempts []domain.AttemptRecord `json:"attempts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body.Count != 1 || len(body.Attempts) != 1 {
		t.Fatalf("count = %d, attempts = %d, want 1", body.Count, len(body.Attempts))
	}
	if body.Attempts[0].Success {
		t.Error("newest attempt should be the 404 failure")
	}
}

func TestHandleAttempts_RejectsBadLimit(t *testing.T) {
	s, _, _ := newTestServer()

	rec := httptest.NewRecorder()
	s.handleAttempts(rec, httptest.NewRequest(http.MethodGet, "/attempts?limit=nope", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", rec.Code)
	}
}

// ===== Reset =====

func TestHandleReset(t *testing.T) {
	s, coord, _ := newTestServer()
	runOp(coord, "404 not found")

	rec := httptest.NewRecorder()
	s.handleReset(rec, httptest.NewRequest(http.MethodPost, "/reset", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	if got := coord.Metrics().TotalAttempts; got != 0 {
		t.Errorf("attempts after reset = %d, want 0", got)
	}
}

func TestHandleReset_RequiresPost(t *testing.T) {
	s, _, _ := newTestServer()

	rec := httptest.NewRecorder()
	s.handleReset(rec, httptest.NewRequest(http.MethodGet, "/reset", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("code = %d, want 405", rec.Code)
	}
}

// ===== Fetch =====

func TestHandleFetch_Success(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("fetched body"))
	}))
	defer upstream.Close()

	s, _, _ := newTestServer()

	payload := `{"url": "` + upstream.URL + `"}`
	rec := httptest.NewRecorder()
	s.handleFetch(rec, httptest.NewRequest(http.MethodPost, "/fetch", strings.NewReader(payload)))

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp fetchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if resp.Attempts != 1 || resp.StatusCode != 200 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.BodyPreview != "fetched body" {
		t.Errorf("preview = %q", resp.BodyPreview)
	}
	if resp.Bytes != len("fetched body") {
		t.Errorf("bytes = %d", resp.Bytes)
	}
}

func TestHandleFetch_UpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer upstream.Close()

	s, _, _ := newTestServer()

	payload := `{"url": "` + upstream.URL + `"}`
	rec := httptest.NewRecorder()
	s.handleFetch(rec, httptest.NewRequest(http.MethodPost, "/fetch", strings.NewReader(payload)))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("code = %d, want 502", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body["category"] != string(domain.CategoryPermanent) {
		t.Errorf("category = %v, want permanent", body["category"])
	}
}

func TestHandleFetch_CircuitOpenMapsTo503(t *testing.T) {
	s, coord, _ := newTestServer()
	for i := 0; i < 100; i++ {
		coord.Breakers().RecordFailure("127.0.0.1")
	}

	payload := `{"url": "http://127.0.0.1:9/never"}`
	rec := httptest.NewRecorder()
	s.handleFetch(rec, httptest.NewRequest(http.MethodPost, "/fetch", strings.NewReader(payload)))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d, want 503, body = %s", rec.Code, rec.Body.String())
	}
}

func TestHandleFetch_Validation(t *testing.T) {
	s, _, _ := newTestServer()

	tests := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"wrong method", httptest.NewRequest(http.MethodGet, "/fetch", nil), http.StatusMethodNotAllowed},
		{"bad json", httptest.NewRequest(http.MethodPost, "/fetch", strings.NewReader("{nope")), http.StatusBadRequest},
		{"missing url", httptest.NewRequest(http.MethodPost, "/fetch", strings.NewReader("{}")), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.handleFetch(rec, tt.req)
			if rec.Code != tt.want {
				t.Errorf("code = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
