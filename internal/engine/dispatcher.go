package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Priya8975/taskflow-webhooks/internal/domain"
	"github.com/Priya8975/taskflow-webhooks/internal/metrics"
	"github.com/Priya8975/taskflow-webhooks/internal/signature"
)

// SubscriptionFinder is the read side of the subscription store the
// dispatcher needs.
type SubscriptionFinder interface {
	FindMatchingSubscriptions(ctx context.Context, companyID, projectID, event string) ([]domain.Subscription, error)
	ProjectCompanyID(ctx context.Context, projectID string) (string, error)
}

// Submitter accepts delivery jobs without blocking the caller.
type Submitter interface {
	Submit(job DeliveryJob)
}

// Dispatcher resolves the subscriptions interested in a domain event and
// hands one delivery job per subscription to the worker pool.
type Dispatcher struct {
	subs      SubscriptionFinder
	submitter Submitter
	logger    *slog.Logger
	now       func() time.Time

	resolveTimeout time.Duration
}

func NewDispatcher(subs SubscriptionFinder, submitter Submitter, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		subs:           subs,
		submitter:      submitter,
		logger:         logger,
		now:            time.Now,
		resolveTimeout: 5 * time.Second,
	}
}

// TriggerWebhooks is the fire-and-forget entry point for CRUD producers. It
// never returns an error and never panics into the caller.
func (d *Dispatcher) TriggerWebhooks(event string, data any, projectID, companyID string) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("webhook dispatch panicked", "event", event, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.resolveTimeout)
	defer cancel()
	d.Dispatch(ctx, event, data, projectID, companyID)
}

// Dispatch resolves the tenant and matching subscriptions, serialises one
// payload and submits a delivery job per subscription. It returns the number
// of deliveries queued; failures are logged, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, event string, data any, projectID, companyID string) int {
	if !domain.IsKnownEvent(event) {
		d.logger.Warn("ignoring unknown webhook event", "event", event)
		return 0
	}

	companyID = d.resolveCompany(ctx, data, projectID, companyID)
	if companyID == "" {
		d.logger.Debug("no company for webhook event", "event", event, "project_id", projectID)
		metrics.Dispatches.WithLabelValues(event, "unresolved").Inc()
		return 0
	}

	subs, err := d.subs.FindMatchingSubscriptions(ctx, companyID, projectID, event)
	if err != nil {
		d.logger.Error("failed to find webhook subscriptions",
			"error", err,
			"event", event,
			"company_id", companyID,
		)
		metrics.Dispatches.WithLabelValues(event, "error").Inc()
		return 0
	}
	if len(subs) == 0 {
		metrics.Dispatches.WithLabelValues(event, "no_match").Inc()
		return 0
	}

	body, err := json.Marshal(domain.NewEventPayload(event, data, projectID, d.now()))
	if err != nil {
		d.logger.Error("failed to serialise webhook payload", "error", err, "event", event)
		metrics.Dispatches.WithLabelValues(event, "error").Inc()
		return 0
	}

	for _, sub := range subs {
		job := DeliveryJob{
			SubscriptionID: sub.ID,
			EndpointURL:    sub.URL,
			Event:          event,
			Body:           body,
		}
		if sub.Signed() {
			job.Signature = signature.Sign(body, *sub.Secret)
		}
		d.submitter.Submit(job)
	}

	metrics.Dispatches.WithLabelValues(event, "matched").Inc()
	d.logger.Info("webhook dispatch queued",
		"event", event,
		"company_id", companyID,
		"project_id", projectID,
		"deliveries_queued", len(subs),
	)
	return len(subs)
}

// resolveCompany prefers the explicit company, then the project's owner,
// then a companyId field carried in data.
func (d *Dispatcher) resolveCompany(ctx context.Context, data any, projectID, companyID string) string {
	if companyID != "" {
		return companyID
	}
	if projectID != "" {
		id, err := d.subs.ProjectCompanyID(ctx, projectID)
		if err != nil {
			d.logger.Warn("failed to resolve project company", "error", err, "project_id", projectID)
		} else if id != "" {
			return id
		}
	}
	id, err := companyFromData(data)
	if err != nil {
		d.logger.Debug("no companyId in event data", "error", err)
	}
	return id
}

func companyFromData(data any) (string, error) {
	switch v := data.(type) {
	case nil:
		return "", nil
	case map[string]any:
		id, _ := v["companyId"].(string)
		return id, nil
	case map[string]string:
		return v["companyId"], nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encoding event data: %w", err)
	}
	var probe struct {
		CompanyID string `json:"companyId"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		// Not an object; nothing to find.
		return "", nil
	}
	return probe.CompanyID, nil
}
