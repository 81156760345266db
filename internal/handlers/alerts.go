package handlers

import (
	"net/http"

	"github.com/afikmenashe/alert-engine/internal/alerts"
)

// CreateAlert handles POST /api/v1/projects/{project}/alerts/{name}.
func (h *Handlers) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var cfg alerts.AlertConfig
	if err := decodeJSON(w, r, &cfg); err != nil {
		writeError(w, r, err)
		return
	}

	created, err := h.svc.CreateAlert(r.Context(), r.PathValue("project"), r.PathValue("name"), &cfg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, created)
}

// StoreAlert handles PUT /api/v1/projects/{project}/alerts/{alert_id}.
func (h *Handlers) StoreAlert(w http.ResponseWriter, r *http.Request) {
	id, err := alertIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var cfg alerts.AlertConfig
	if err := decodeJSON(w, r, &cfg); err != nil {
		writeError(w, r, err)
		return
	}

	stored, err := h.svc.StoreAlert(r.Context(), r.PathValue("project"), id, &cfg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// GetAlert handles GET /api/v1/projects/{project}/alerts/{alert_id}.
func (h *Handlers) GetAlert(w http.ResponseWriter, r *http.Request) {
	id, err := alertIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	a, err := h.svc.GetAlert(r.Context(), r.PathValue("project"), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ListAlerts handles GET /api/v1/projects/{project}/alerts.
func (h *Handlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListAlerts(r.Context(), r.PathValue("project"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*alerts.AlertConfig{}
	}
	writeJSON(w, http.StatusOK, list)
}

// DeleteAlert handles DELETE /api/v1/projects/{project}/alerts/{alert_id}.
// Deleting a missing alert succeeds.
func (h *Handlers) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	id, err := alertIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.DeleteAlert(r.Context(), r.PathValue("project"), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteProjectAlerts handles DELETE /api/v1/projects/{project}/alerts.
func (h *Handlers) DeleteProjectAlerts(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteProjectAlerts(r.Context(), r.PathValue("project")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResetAlert handles POST /api/v1/projects/{project}/alerts/{alert_id}/reset
// and returns the alert with its reset state.
func (h *Handlers) ResetAlert(w http.ResponseWriter, r *http.Request) {
	id, err := alertIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	project := r.PathValue("project")
	if err := h.svc.ResetAlert(r.Context(), project, id); err != nil {
		writeError(w, r, err)
		return
	}

	a, err := h.svc.GetAlert(r.Context(), project, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
