// Package handlers provides HTTP handlers for the alert engine API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/afikmenashe/alert-engine/internal/alerts"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// AlertService is the engine surface the API drives.
type AlertService interface {
	CreateAlert(ctx context.Context, project, name string, cfg *alerts.AlertConfig) (*alerts.AlertConfig, error)
	StoreAlert(ctx context.Context, project string, alertID int64, cfg *alerts.AlertConfig) (*alerts.AlertConfig, error)
	GetAlert(ctx context.Context, project string, alertID int64) (*alerts.AlertConfig, error)
	ListAlerts(ctx context.Context, project string) ([]*alerts.AlertConfig, error)
	DeleteAlert(ctx context.Context, project string, alertID int64) error
	DeleteProjectAlerts(ctx context.Context, project string) error
	ResetAlert(ctx context.Context, project string, alertID int64) error
	HandleEvent(ctx context.Context, project string, event *alerts.Event) error
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers wraps dependencies for HTTP handlers.
type Handlers struct {
	svc    AlertService
	pinger Pinger
}

// NewHandlers creates a new handlers instance. pinger may be nil.
func NewHandlers(svc AlertService, pinger Pinger) *Handlers {
	return &Handlers{svc: svc, pinger: pinger}
}

// statusFor maps the error taxonomy to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, alerts.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, alerts.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, alerts.ErrBadRequest), errors.Is(err, alerts.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as a JSON error body. Internal errors are logged and
// reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		msg = "internal server error"
	} else {
		slog.Debug("Request rejected",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", alerts.ErrBadRequest, err)
	}
	return nil
}

func alertIDParam(r *http.Request) (int64, error) {
	raw := r.PathValue("alert_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid alert id %q", alerts.ErrBadRequest, raw)
	}
	return id, nil
}

// Health reports service health, including the store when a pinger is set.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			slog.Warn("Health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
