package api

import (
	"encoding/json"
	"net/http"

	"github.com/Priya8975/taskflow-webhooks/internal/domain"
)

// EventHandler lets producers in other processes fire events.
type EventHandler struct {
	dispatcher Dispatcher
}

func NewEventHandler(d Dispatcher) *EventHandler {
	return &EventHandler{dispatcher: d}
}

type createEventRequest struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	ProjectID string          `json:"project_id,omitempty"`
	CompanyID string          `json:"company_id,omitempty"`
}

type createEventResponse struct {
	Event            string `json:"event"`
	DeliveriesQueued int    `json:"deliveries_queued"`
}

// Create dispatches the event and answers once deliveries are queued; it
// never waits for receivers.
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Event == "" {
		respondError(w, http.StatusBadRequest, "event is required")
		return
	}
	if !domain.IsKnownEvent(req.Event) {
		respondError(w, http.StatusBadRequest, "unknown event")
		return
	}

	var data any
	if len(req.Data) > 0 {
		if err := json.Unmarshal(req.Data, &data); err != nil {
			respondError(w, http.StatusBadRequest, "data must be valid JSON")
			return
		}
	}

	queued := h.dispatcher.Dispatch(r.Context(), req.Event, data, req.ProjectID, req.CompanyID)

	respondJSON(w, http.StatusAccepted, createEventResponse{
		Event:            req.Event,
		DeliveriesQueued: queued,
	})
}
