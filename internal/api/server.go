// Package api exposes the management HTTP routes of the relay.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/mixelka/inboxrelay/internal/metrics"
	"github.com/mixelka/inboxrelay/internal/monitor"
	"github.com/mixelka/inboxrelay/pkg/models"
)

// Monitors is the scheduler surface the routes drive
type Monitors interface {
	Start(reg monitor.Registration) error
	Stop(userID int64) bool
	Status(userID int64) models.MonitorStatus
	ListActive() []models.MonitorSummary
	Count() int
	ForcePoll(ctx context.Context, userID int64) error
}

// Deliveries reads the delivery journal
type Deliveries interface {
	ListDeliveries(ctx context.Context, chatID int64, limit int) ([]*models.Delivery, error)
}

// ServerDeps dependencies for creating the HTTP server
type ServerDeps struct {
	Monitors     Monitors
	Deliveries   Deliveries // nil when the journal is disabled
	Logger       *slog.Logger
	CheckTimeout time.Duration
}

// Server serves the management routes
type Server struct {
	monitors     Monitors
	deliveries   Deliveries
	logger       *slog.Logger
	checkTimeout time.Duration
	started      time.Time
}

// NewServer creates a new API server
func NewServer(deps ServerDeps) *Server {
	timeout := deps.CheckTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Server{
		monitors:     deps.Monitors,
		deliveries:   deps.Deliveries,
		logger:       deps.Logger.With("component", "api"),
		checkTimeout: timeout,
		started:      time.Now(),
	}
}

// Handler returns the routes wrapped with an open CORS policy
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /register-user", s.handleRegister)
	mux.HandleFunc("POST /stop-monitoring", s.handleStop)
	mux.HandleFunc("GET /status/{chat_id}", s.handleStatus)
	mux.HandleFunc("GET /active-users", s.handleActiveUsers)
	mux.HandleFunc("POST /check-inbox", s.handleCheckInbox)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /deliveries/{chat_id}", s.handleDeliveries)
	mux.Handle("GET /metrics", metrics.Handler())

	return cors.AllowAll().Handler(mux)
}

// writeJSON writes v with the given status code
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
