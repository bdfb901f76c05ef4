package api

import (
	"net/http"

	"github.com/Priya8975/taskflow-webhooks/internal/engine"
	"github.com/Priya8975/taskflow-webhooks/internal/store"
	ws "github.com/Priya8975/taskflow-webhooks/internal/websocket"
	"github.com/go-chi/chi/v5"
)

type DashboardHandler struct {
	store  Store
	health *engine.HealthTracker
	hub    *ws.Hub
}

func NewDashboardHandler(s Store, health *engine.HealthTracker, hub *ws.Hub) *DashboardHandler {
	return &DashboardHandler{store: s, health: health, hub: hub}
}

// Stats returns aggregated delivery statistics for a company.
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.DeliveryStats(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get webhook stats")
		return
	}

	type statsResponse struct {
		store.DeliveryStats
		WebSocketClients int `json:"websocket_clients"`
	}

	resp := statsResponse{DeliveryStats: *stats}
	if h.hub != nil {
		resp.WebSocketClients = h.hub.ClientCount()
	}
	respondJSON(w, http.StatusOK, resp)
}

// Health returns the endpoint health of every webhook in a company.
func (h *DashboardHandler) Health(w http.ResponseWriter, r *http.Request) {
	subs, err := h.store.ListSubscriptions(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list webhooks")
		return
	}

	type webhookHealth struct {
		ID     string                `json:"id"`
		URL    string                `json:"url"`
		Active bool                  `json:"active"`
		Health engine.EndpointHealth `json:"health"`
	}

	result := make([]webhookHealth, 0, len(subs))
	for _, sub := range subs {
		result = append(result, webhookHealth{
			ID:     sub.ID,
			URL:    sub.URL,
			Active: sub.Active,
			Health: h.health.GetState(r.Context(), sub.ID),
		})
	}

	respondJSON(w, http.StatusOK, result)
}
