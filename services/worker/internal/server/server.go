package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"waifugen/internal/metrics"
	"waifugen/internal/util"
)

// Config wires the worker's operational endpoints.
type Config struct {
	Ping    func(ctx context.Context) error
	Metrics *metrics.Metrics
}

// Server exposes health and metrics for the worker process.
type Server struct {
	ping    func(ctx context.Context) error
	metrics *metrics.Metrics
	mux     *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		ping:    cfg.Ping,
		metrics: cfg.Metrics,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	var observe util.RequestObserver
	if s.metrics != nil {
		observe = s.metrics.ObserveRequest
	}
	return util.WithRequestID(util.WithRequestLog("worker", observe, s.mux))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ping(ctx); err != nil {
			util.LoggerFromContext(r.Context()).Error("health check failed", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
