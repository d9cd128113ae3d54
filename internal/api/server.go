package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobposting-crawler/internal/crawler"
)

// ReportSource exposes the most recent run report.
type ReportSource interface {
	LastReport() (crawler.RunReport, bool)
}

// Trigger starts a run in the background. It returns false when a run is
// already in progress.
type Trigger interface {
	TriggerRun() bool
}

// Metrics exposes the Prometheus handler and request instrumentation.
type Metrics interface {
	Handler() http.Handler
	Middleware(next http.Handler) http.Handler
}

// ReadyFunc reports whether downstream dependencies are reachable.
type ReadyFunc func(ctx context.Context) error

// Options wires optional collaborators.
type Options struct {
	Metrics Metrics
	Ready   ReadyFunc
	Trigger Trigger
}

// Server wires HTTP handlers to the run coordinator.
type Server struct {
	router  chi.Router
	reports ReportSource
	opts    Options
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(reports ReportSource, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{reports: reports, opts: opts, logger: logger.Named("api")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Route("/v1/runs", func(r chi.Router) {
		r.Get("/last", s.lastRun)
		if opts.Trigger != nil {
			r.Post("/", s.triggerRun)
		}
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.opts.Ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			s.writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) lastRun(w http.ResponseWriter, _ *http.Request) {
	report, ok := s.reports.LastReport()
	if !ok {
		s.writeError(w, http.StatusNotFound, "no run has completed yet")
		return
	}
	postings, denied := report.Totals()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"report":   report,
		"postings": postings,
		"denied":   denied,
	})
}

func (s *Server) triggerRun(w http.ResponseWriter, _ *http.Request) {
	if !s.opts.Trigger.TriggerRun() {
		s.writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
