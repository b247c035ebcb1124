// Package introspect serves the operational HTTP surface: health,
// status, recent attempts, resets, guarded fetches and prometheus
// metrics.
package introspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/bulwark/internal/core/domain"
	"github.com/vietddude/bulwark/internal/fetch"
	"github.com/vietddude/bulwark/internal/retry/classify"
	"github.com/vietddude/bulwark/internal/retry/coordinator"
)

const (
	defaultAttemptLimit = 50
	fetchBodyPreview    = 4096
)

// StatusReport is the /status payload.
type StatusReport struct {
	Status          SystemStatus                      `json:"status"`
	Uptime          string                            `json:"uptime"`
	Metrics         domain.Metrics                    `json:"metrics"`
	Breakers        map[string]domain.BreakerSnapshot `json:"breakers"`
	Recommendations []string                          `json:"recommendations"`
}

type Server struct {
	server  *http.Server
	coord   *coordinator.Coordinator
	fetcher *fetch.Service
	started time.Time
	log     *slog.Logger
}

func NewServer(port int, coord *coordinator.Coordinator, fetcher *fetch.Service) *Server {
	s := &Server{
		coord:   coord,
		fetcher: fetcher,
		started: time.Now(),
		log:     slog.Default().With("component", "introspect"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/attempts", s.handleAttempts)
	mux.HandleFunc("/reset", s.handleReset)
	mux.HandleFunc("/fetch", s.handleFetch)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	return s
}

// Start blocks serving HTTP until Stop is called.
func (s *Server) Start() error {
	s.log.Info("Starting introspection server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("introspection server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("Stopping introspection server")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := deriveStatus(s.coord.Metrics(), s.coord.BreakerStates())

	code := http.StatusOK
	if status == StatusCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{
		"status": string(status),
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	m := s.coord.Metrics()
	breakers := s.coord.BreakerStates()

	writeJSON(w, http.StatusOK, StatusReport{
		Status:          deriveStatus(m, breakers),
		Uptime:          time.Since(s.started).Round(time.Second).String(),
		Metrics:         m,
		Breakers:        breakers,
		Recommendations: s.coord.Recommendations(),
	})
}

func (s *Server) handleAttempts(w http.ResponseWriter, r *http.Request) {
	limit := defaultAttemptLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	attempts := s.coord.RecentAttempts(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(attempts),
		"attempts": attempts,
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.coord.Reset()
	s.log.Info("State reset via introspection API")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

type fetchRequest struct {
	URL  string `json:"url"`
	Kind string `json:"kind,omitempty"`
}

type fetchResponse struct {
	URL         string `json:"url"`
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Bytes       int    `json:"bytes"`
	Attempts    int    `json:"attempts"`
	BodyPreview string `json:"body_preview,omitempty"`
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req fetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}

	res, outcome := s.fetcher.Fetch(r.Context(), req.URL, domain.OperationKind(req.Kind))
	if !outcome.Success {
		code := http.StatusBadGateway
		if errors.Is(outcome.Err, coordinator.ErrCircuitOpen) {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{
			"error":    outcome.Error(),
			"attempts": outcome.Attempts,
			"category": classify.Classify(outcome.Error()).Category,
		})
		return
	}

	preview := res.Body
	if len(preview) > fetchBodyPreview {
		preview = preview[:fetchBodyPreview]
	}
	writeJSON(w, http.StatusOK, fetchResponse{
		URL:         res.URL,
		StatusCode:  res.StatusCode,
		ContentType: res.ContentType,
		Bytes:       len(res.Body),
		Attempts:    outcome.Attempts,
		BodyPreview: string(preview),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
