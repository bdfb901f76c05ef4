package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Priya8975/taskflow-webhooks/internal/domain"
	"github.com/Priya8975/taskflow-webhooks/internal/engine"
	"github.com/Priya8975/taskflow-webhooks/internal/store"
	"github.com/go-chi/chi/v5"
)

type SubscriptionHandler struct {
	store  Store
	health *engine.HealthTracker
}

func NewSubscriptionHandler(s Store, health *engine.HealthTracker) *SubscriptionHandler {
	return &SubscriptionHandler{store: s, health: health}
}

func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	subs, err := h.store.ListSubscriptions(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list webhooks")
		return
	}

	respondJSON(w, http.StatusOK, subs)
}

func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub, err := h.store.CreateSubscription(r.Context(), chi.URLParam(r, "companyID"), req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create webhook")
		return
	}

	respondJSON(w, http.StatusCreated, domain.CreateSubscriptionResponse{Subscription: *sub})
}

func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sub, ok := loadSubscription(w, r, h.store)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, sub)
}

func (h *SubscriptionHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub, err := h.store.UpdateSubscription(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "id"), req)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "webhook not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update webhook")
		return
	}

	respondJSON(w, http.StatusOK, sub)
}

// Delete removes the webhook together with its delivery logs.
func (h *SubscriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.store.DeleteSubscription(r.Context(), chi.URLParam(r, "companyID"), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "webhook not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete webhook")
		return
	}
	h.health.Forget(r.Context(), id)

	w.WriteHeader(http.StatusNoContent)
}

// loadSubscription fetches the {id} webhook, hiding other tenants' webhooks
// behind a 404.
func loadSubscription(w http.ResponseWriter, r *http.Request, st Store) (*domain.Subscription, bool) {
	sub, err := st.GetSubscription(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get webhook")
		return nil, false
	}
	if sub == nil || sub.CompanyID != chi.URLParam(r, "companyID") {
		respondError(w, http.StatusNotFound, "webhook not found")
		return nil, false
	}
	return sub, true
}
