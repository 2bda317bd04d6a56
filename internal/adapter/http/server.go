package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/synop-bufr-etl/internal/domain"
)

// StatusProvider exposes the current or last run.
type StatusProvider interface {
	Status() domain.RunSummary
}

// Server exposes health, readiness, run status, and metrics HTTP endpoints
// while a run is in progress.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /status, and
// /metrics routes. Metrics are served from gatherer.
func NewServer(addr string, ready sharedobs.ReadinessChecker, status StatusProvider, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.HandleFunc("GET /status", handleStatus(status))
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type slotStatus struct {
	Slot     string `json:"slot"`
	Date     string `json:"date"`
	Outcome  string `json:"outcome"`
	Sources  int    `json:"sources"`
	Lines    int    `json:"lines"`
	Dropped  int    `json:"dropped_missing"`
	Artifact string `json:"artifact,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

type runStatus struct {
	RunID      string       `json:"run_id,omitempty"`
	State      string       `json:"state"`
	Done       bool         `json:"done"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	Staged     int          `json:"staged_files"`
	Archived   int          `json:"archived"`
	Error      string       `json:"error,omitempty"`
	Slots      []slotStatus `json:"slots"`
}

func newRunStatus(s domain.RunSummary) runStatus {
	rs := runStatus{
		RunID:    s.RunID,
		State:    string(s.State),
		Done:     s.State.Terminal(),
		Staged:   s.Staged,
		Archived: s.Archived(),
		Slots:    make([]slotStatus, 0, len(s.Slots)),
	}
	if !s.StartedAt.IsZero() {
		rs.StartedAt = &s.StartedAt
	}
	if !s.FinishedAt.IsZero() {
		rs.FinishedAt = &s.FinishedAt
	}
	if s.Err != nil {
		rs.Error = s.Err.Error()
	}
	for _, r := range s.Slots {
		rs.Slots = append(rs.Slots, slotStatus{
			Slot:     r.Slot.ID(),
			Date:     r.Date.Format(time.DateOnly),
			Outcome:  string(r.Outcome),
			Sources:  r.Sources,
			Lines:    r.Lines,
			Dropped:  r.Dropped,
			Artifact: r.Artifact,
			Size:     r.Size,
		})
	}
	return rs
}

func handleStatus(provider StatusProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, newRunStatus(provider.Status()))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort status response
}
