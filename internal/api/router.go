package api

import (
	"context"
	"net/http"

	"github.com/Priya8975/taskflow-webhooks/internal/domain"
	"github.com/Priya8975/taskflow-webhooks/internal/engine"
	"github.com/Priya8975/taskflow-webhooks/internal/metrics"
	"github.com/Priya8975/taskflow-webhooks/internal/store"
	ws "github.com/Priya8975/taskflow-webhooks/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Store is the persistence the admin API reads and writes.
type Store interface {
	ListSubscriptions(ctx context.Context, companyID string) ([]domain.Subscription, error)
	GetSubscription(ctx context.Context, id string) (*domain.Subscription, error)
	CreateSubscription(ctx context.Context, companyID string, req domain.CreateSubscriptionRequest) (*domain.Subscription, error)
	UpdateSubscription(ctx context.Context, companyID, id string, req domain.UpdateSubscriptionRequest) (*domain.Subscription, error)
	DeleteSubscription(ctx context.Context, companyID, id string) error

	ListDeliveries(ctx context.Context, f store.DeliveryFilter) ([]domain.DeliveryAttemptRecord, error)
	GetDelivery(ctx context.Context, id string) (*domain.DeliveryAttemptRecord, error)
	DeliveryStats(ctx context.Context, companyID string) (*store.DeliveryStats, error)
}

// Dispatcher fires a domain event to matching subscriptions.
type Dispatcher interface {
	Dispatch(ctx context.Context, event string, data any, projectID, companyID string) int
}

// NewRouter creates and configures the HTTP router. health and hub may be nil.
func NewRouter(st Store, dispatcher Dispatcher, health *engine.HealthTracker, hub *ws.Hub) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(corsMiddleware)

	subHandler := NewSubscriptionHandler(st, health)
	logHandler := NewLogHandler(st)
	eventHandler := NewEventHandler(dispatcher)
	dashHandler := NewDashboardHandler(st, health, hub)

	if hub != nil {
		r.Get("/ws", hub.HandleWebSocket)
	}
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler())

		r.Post("/events", eventHandler.Create)

		r.Route("/companies/{companyID}", func(r chi.Router) {
			r.Route("/webhooks", func(r chi.Router) {
				r.Get("/", subHandler.List)
				r.Post("/", subHandler.Create)
				r.Get("/{id}", subHandler.Get)
				r.Patch("/{id}", subHandler.Update)
				r.Delete("/{id}", subHandler.Delete)
				r.Get("/{id}/logs", logHandler.List)
				r.Get("/{id}/logs/{logID}", logHandler.Get)
			})

			r.Get("/webhook-stats", dashHandler.Stats)
			r.Get("/webhook-health", dashHandler.Health)
		})
	})

	return r
}

// corsMiddleware adds CORS headers for the admin dashboard.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
