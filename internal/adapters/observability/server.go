package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/offerlane/arbiter/internal/domain"
	"github.com/offerlane/arbiter/internal/ports"
)

// Server exposes /healthz, /metrics, and a diagnostic /operations listing of
// live leases. It is optional and off by default; the core never depends on
// it being up.
type Server struct {
	cfg       domain.ObservabilityConfig
	server    *http.Server
	logger    *slog.Logger
	metrics   *Metrics
	mutex     ports.OperationMutex
	startTime time.Time
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
}

type OperationsResponse struct {
	Timestamp time.Time               `json:"timestamp"`
	Count     int                     `json:"count"`
	Leases    []domain.OperationLease `json:"leases"`
}

func NewServer(cfg domain.ObservabilityConfig, metrics *Metrics, mutex ports.OperationMutex, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		logger:  logger.With("component", "observability"),
		metrics: metrics,
		mutex:   mutex,
	}
}

func (s *Server) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/operations", s.handleOperations)
	if s.metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}

	s.startTime = time.Now()
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      mux,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	go func() {
		s.logger.Info("observability server listening", "port", s.cfg.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("observability server failed", "error", err)
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Uptime:    time.Since(s.startTime).String(),
	})
}

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	if s.mutex == nil {
		writeJSON(w, http.StatusOK, OperationsResponse{Timestamp: time.Now()})
		return
	}

	leases, err := s.mutex.Snapshot(r.Context())
	if err != nil {
		s.logger.Error("lease snapshot failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, OperationsResponse{
		Timestamp: time.Now(),
		Count:     len(leases),
		Leases:    leases,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
