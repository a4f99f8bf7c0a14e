// Package httpapi exposes the monitor's observer surface over HTTP: health
// and readiness probes, Prometheus metrics, the scheduler status snapshot,
// the recent-alert history, and a manual check trigger. Any UI attaches
// here instead of linking against the scheduler directly.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/weather-alert-monitor/internal/domain"
	"github.com/couchcryptid/weather-alert-monitor/internal/monitor"
)

const defaultAlertLimit = 20

// Scheduler is the slice of the check-cycle scheduler the API serves.
type Scheduler interface {
	Status() monitor.Status
	RunOnce()
	CheckReadiness(ctx context.Context) error
}

// AlertHistory reads the recent-alert table.
type AlertHistory interface {
	Recent(n int) []domain.AlertRecord
}

// Server exposes the monitor API endpoints.
type Server struct {
	httpServer *http.Server
	scheduler  Scheduler
	alerts     AlertHistory
	logger     *slog.Logger
}

// NewServer creates the API server.
func NewServer(addr string, scheduler Scheduler, alerts AlertHistory, logger *slog.Logger) *Server {
	s := &Server{
		scheduler: scheduler,
		alerts:    alerts,
		logger:    logger,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/alerts", s.handleAlerts).Methods(http.MethodGet)
	api.HandleFunc("/check", s.handleCheck).Methods(http.MethodPost)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
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

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.scheduler.CheckReadiness(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.scheduler.Status())
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := defaultAlertLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = n
	}

	records := s.alerts.Recent(limit)
	if records == nil {
		records = []domain.AlertRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": records})
}

func (s *Server) handleCheck(w http.ResponseWriter, _ *http.Request) {
	s.logger.Info("manual check requested over http")
	s.scheduler.RunOnce()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "check triggered"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort status response
}
