package api

import (
	"net/http"
	"strconv"

	"github.com/Priya8975/taskflow-webhooks/internal/domain"
	"github.com/Priya8975/taskflow-webhooks/internal/store"
	"github.com/go-chi/chi/v5"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

// LogHandler serves the delivery log of one webhook. Records with status
// failed are the dead letters.
type LogHandler struct {
	store Store
}

func NewLogHandler(s Store) *LogHandler {
	return &LogHandler{store: s}
}

func (h *LogHandler) List(w http.ResponseWriter, r *http.Request) {
	sub, ok := loadSubscription(w, r, h.store)
	if !ok {
		return
	}

	status := r.URL.Query().Get("status")
	switch status {
	case "", domain.StatusPending, domain.StatusSuccess, domain.StatusFailed:
	default:
		respondError(w, http.StatusBadRequest, "status must be pending, success or failed")
		return
	}

	limit := defaultLogLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = min(n, maxLogLimit)
		}
	}

	logs, err := h.store.ListDeliveries(r.Context(), store.DeliveryFilter{
		SubscriptionID: sub.ID,
		Status:         status,
		Limit:          limit,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list webhook logs")
		return
	}

	respondJSON(w, http.StatusOK, logs)
}

func (h *LogHandler) Get(w http.ResponseWriter, r *http.Request) {
	sub, ok := loadSubscription(w, r, h.store)
	if !ok {
		return
	}

	rec, err := h.store.GetDelivery(r.Context(), chi.URLParam(r, "logID"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get webhook log")
		return
	}
	if rec == nil || rec.SubscriptionID != sub.ID {
		respondError(w, http.StatusNotFound, "webhook log not found")
		return
	}

	respondJSON(w, http.StatusOK, rec)
}
