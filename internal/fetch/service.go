// Package fetch is the HTTP gateway guarded by the retry engine. It
// owns the per-destination client strategies and parks exhausted
// fetches in the dead letter queue.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/bulwark/internal/core/domain"
	"github.com/vietddude/bulwark/internal/infra/dlq"
	"github.com/vietddude/bulwark/internal/retry/classify"
	"github.com/vietddude/bulwark/internal/retry/coordinator"
)

// DefaultMaxBodyBytes caps how much of an upstream body is read.
const DefaultMaxBodyBytes = 2 << 20

// DefaultStrategies is the rotation order when config names none.
var DefaultStrategies = []string{"default", "desktop", "mobile", "minimal"}

// strategyHeaders maps a strategy label to the request headers it
// presents. Unknown labels fall back to "default".
var strategyHeaders = map[string]map[string]string{
	"default": {
		"User-Agent": "bulwark/1.0",
	},
	"desktop": {
		"User-Agent":      "Mozilla/5.0 (X11; Linux x86_64; rv:124.0) Gecko/20100101 Firefox/124.0",
		"Accept-Language": "en-US,en;q=0.9",
	},
	"mobile": {
		"User-Agent":      "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
		"Accept-Language": "en-US",
	},
	"minimal": {
		"User-Agent": "curl/8.5.0",
	},
}

// DeadLetterSink parks a fetch that exhausted its retries.
type DeadLetterSink interface {
	Push(ctx context.Context, e *dlq.Entry) error
}

type Config struct {
	// Strategies is the rotation order of client strategies.
	Strategies []string `yaml:"strategies"`
	// MaxBodyBytes caps upstream body reads.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// Result is a completed fetch.
type Result struct {
	URL         string `json:"url"`
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"-"`
}

// Service fetches URLs through the coordinator. Each destination host
// has a strategy cursor which advances when the engine surfaces a
// switch intent; the new strategy applies to subsequent invocations.
type Service struct {
	coord       *coordinator.Coordinator
	client      *http.Client
	strategies  []string
	maxBody     int64
	deadLetters DeadLetterSink

	mu     sync.Mutex
	cursor map[string]int

	log *slog.Logger
}

func NewService(coord *coordinator.Coordinator, cfg Config) *Service {
	strategies := cfg.Strategies
	if len(strategies) == 0 {
		strategies = DefaultStrategies
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	s := &Service{
		coord:      coord,
		client:     &http.Client{},
		strategies: strategies,
		maxBody:    maxBody,
		cursor:     make(map[string]int),
		log:        slog.Default().With("component", "fetch"),
	}
	coord.SetSwitchCallback(func(exec domain.ExecContext, category domain.ErrorCategory) {
		next := s.AdvanceStrategy(exec.DestinationKey)
		s.log.Info("Strategy rotated",
			"destination", exec.DestinationKey,
			"category", category,
			"strategy", next)
	})
	return s
}

// SetDeadLetterSink enables parking of exhausted fetches. Set during
// wiring, before traffic flows.
func (s *Service) SetDeadLetterSink(sink DeadLetterSink) {
	s.deadLetters = sink
}

// Strategy returns the strategy currently in force for a destination.
func (s *Service) Strategy(dest string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strategies[s.cursor[dest]%len(s.strategies)]
}

// AdvanceStrategy rotates a destination to its next strategy and
// returns the new label.
func (s *Service) AdvanceStrategy(dest string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor[dest] = (s.cursor[dest] + 1) % len(s.strategies)
	return s.strategies[s.cursor[dest]]
}

// Fetch runs one guarded fetch and parks it in the dead letter queue
// if it fails for good.
func (s *Service) Fetch(ctx context.Context, rawURL string, kind domain.OperationKind) (*Result, domain.Outcome) {
	res, exec, outcome := s.do(ctx, rawURL, kind)
	if !outcome.Success && exec.DestinationKey != "" {
		s.park(rawURL, exec, outcome)
	}
	return res, outcome
}

// Replay re-runs a parked fetch without parking it again; the replay
// worker owns the entry's fate.
func (s *Service) Replay(ctx context.Context, rawURL string, kind domain.OperationKind) (*Result, domain.Outcome) {
	res, _, outcome := s.do(ctx, rawURL, kind)
	return res, outcome
}

func (s *Service) do(ctx context.Context, rawURL string, kind domain.OperationKind) (*Result, domain.ExecContext, domain.Outcome) {
	if kind == "" {
		kind = domain.KindFetch
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, domain.ExecContext{}, domain.Outcome{Err: fmt.Errorf("invalid url %q: %w", rawURL, err)}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return nil, domain.ExecContext{}, domain.Outcome{Err: fmt.Errorf("invalid url %q: need an absolute http(s) url", rawURL)}
	}

	dest := strings.ToLower(u.Hostname())
	exec := domain.ExecContext{
		DestinationKey: dest,
		StrategyLabel:  s.Strategy(dest),
		Kind:           kind,
	}

	outcome := s.coord.Execute(ctx, s.operation(rawURL, exec.StrategyLabel), exec, nil)
	if !outcome.Success {
		return nil, exec, outcome
	}
	res, ok := outcome.Result.(*Result)
	if !ok {
		outcome.Success = false
		outcome.Err = fmt.Errorf("unexpected result type %T", outcome.Result)
		return nil, exec, outcome
	}
	return res, exec, outcome
}

func (s *Service) operation(rawURL, strategy string) coordinator.Operation {
	headers, ok := strategyHeaders[strategy]
	if !ok {
		headers = strategyHeaders["default"]
	}

	return func(ctx context.Context) (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			// Drain so the connection can be reused.
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			return nil, fmt.Errorf("%s returned %d %s", req.URL.Hostname(), resp.StatusCode, http.StatusText(resp.StatusCode))
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBody))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return &Result{
			URL:         rawURL,
			StatusCode:  resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Body:        body,
		}, nil
	}
}

// park hands a dead fetch to the queue. The invocation's context may
// already be cancelled, so parking runs on its own deadline.
func (s *Service) park(rawURL string, exec domain.ExecContext, outcome domain.Outcome) {
	if s.deadLetters == nil {
		return
	}

	cls := classify.Classify(outcome.Error())
	errType := "permanent"
	if cls.Retryable {
		errType = "transient"
	}

	now := time.Now()
	entry := &dlq.Entry{
		ID:             uuid.New().String(),
		URL:            rawURL,
		Kind:           string(exec.Kind),
		DestinationKey: exec.DestinationKey,
		StrategyLabel:  exec.StrategyLabel,
		Error:          outcome.Error(),
		ErrorType:      errType,
		NextRetryAt:    now.Add(replayDelay(0)),
		CreatedAt:      now,
		LastFailedAt:   now,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.deadLetters.Push(ctx, entry); err != nil {
		s.log.Warn("Failed to park dead fetch", "url", rawURL, "error", err)
		return
	}
	s.log.Info("Parked dead fetch",
		"url", rawURL,
		"destination", exec.DestinationKey,
		"error_type", errType,
		"next_retry_at", entry.NextRetryAt)
}
