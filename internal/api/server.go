// Package api exposes the HTTP status interface for the monitor service.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aperez/iattc-monitor/internal/monitor"
)

// StatusSource reports the most recent completed cycle.
type StatusSource interface {
	LastRun() (monitor.RunSummary, bool)
}

// Server wires the status routes.
type Server struct {
	router chi.Router
	status StatusSource
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(status StatusSource, logger *zap.Logger) *Server {
	s := &Server{
		status: status,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/status", s.lastStatus)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) lastStatus(w http.ResponseWriter, _ *http.Request) {
	summary, ok := s.status.LastRun()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no cycle has completed yet"})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("handler panicked", zap.Any("panic", rec))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
