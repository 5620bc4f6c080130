package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is a backend with a health check
type Pinger interface {
	Ping(ctx context.Context) error
}

// Counter reports stored record totals
type Counter interface {
	CountUsers(ctx context.Context) (int64, error)
	CountFiles(ctx context.Context) (int64, error)
}

// AppHandler reports service health and totals
type AppHandler struct {
	sessions Pinger
	db       Pinger
	counter  Counter
	logger   *slog.Logger
}

// NewAppHandler creates a new app handler
func NewAppHandler(sessions, db Pinger, counter Counter, logger *slog.Logger) *AppHandler {
	return &AppHandler{sessions: sessions, db: db, counter: counter, logger: logger}
}

type statusResponse struct {
	Redis bool `json:"redis"`
	DB    bool `json:"db"`
}

type statsResponse struct {
	Users int64 `json:"users"`
	Files int64 `json:"files"`
}

// Status handles GET /status
func (ah *AppHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := statusResponse{
		Redis: ah.alive(ctx, "redis", ah.sessions),
		DB:    ah.alive(ctx, "db", ah.db),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (ah *AppHandler) alive(ctx context.Context, name string, p Pinger) bool {
	if err := p.Ping(ctx); err != nil {
		ah.logger.WarnContext(ctx, "health check failed", "backend", name, "error", err)
		return false
	}
	return true
}

// Stats handles GET /stats
func (ah *AppHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	users, err := ah.counter.CountUsers(ctx)
	if err != nil {
		writeError(w, r, ah.logger, err)
		return
	}
	files, err := ah.counter.CountFiles(ctx)
	if err != nil {
		writeError(w, r, ah.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Users: users, Files: files})
}
