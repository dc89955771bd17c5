// Package api exposes the optional status endpoint for a running
// harvest.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"jobharvest/internal/progress"
)

// Server serves health, progress counters and Prometheus metrics.
type Server struct {
	http    *http.Server
	tracker *progress.Tracker
	runID   string
	logger  *zap.Logger
}

// NewServer builds the HTTP server on the given port.
func NewServer(port int, tracker *progress.Tracker, runID string, logger *zap.Logger) *Server {
	s := &Server{
		tracker: tracker,
		runID:   runID,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/progress", s.handleProgress)
	r.Handle("/metrics", promhttp.Handler())

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start serves until Shutdown. Blocks.
func (s *Server) Start() error {
	s.logger.Info("status api listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status api: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleProgress(w http.ResponseWriter, _ *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(struct {
		RunID string `json:"run_id"`
		progress.Counters
	}{RunID: s.runID, Counters: snap})
	if err != nil {
		s.logger.Warn("progress encode failed", zap.Error(err))
	}
}
