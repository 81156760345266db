package handlers

import (
	"net/http"

	"github.com/afikmenashe/alert-engine/internal/alerts"
)

// EventRequest is the body of an event post. The event kind comes from the path.
type EventRequest struct {
	Entity alerts.Entity `json:"entity"`
	Value  any           `json:"value,omitempty"`
}

// PostEvent handles POST /api/v1/projects/{project}/events/{kind}.
// An entity without a project is taken to belong to the path project.
func (h *Handlers) PostEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	project := r.PathValue("project")
	if req.Entity.Project == "" {
		req.Entity.Project = project
	}
	event := &alerts.Event{
		Kind:   r.PathValue("kind"),
		Entity: req.Entity,
		Value:  req.Value,
	}

	if err := h.svc.HandleEvent(r.Context(), project, event); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
