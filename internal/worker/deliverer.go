package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Priya8975/taskflow-webhooks/internal/domain"
	"github.com/Priya8975/taskflow-webhooks/internal/engine"
	"github.com/Priya8975/taskflow-webhooks/internal/metrics"
	"github.com/Priya8975/taskflow-webhooks/internal/signature"
	"github.com/Priya8975/taskflow-webhooks/internal/store"
	ws "github.com/Priya8975/taskflow-webhooks/internal/websocket"
)

// Outbound headers besides the signature.
const (
	EventHeader    = "X-Webhook-Event"
	DeliveryHeader = "X-Webhook-Delivery"
)

// errInactive ends a retry chain whose subscription was deleted or disabled.
var errInactive = errors.New("subscription no longer active")

// readLimit bounds how much of a response body is read; the stored snippet
// is capped in runes, so allow for multi-byte text.
const readLimit = domain.ResponseSnippetLimit * 4

// DeliveryStore is the part of the store the deliverer needs.
type DeliveryStore interface {
	GetSubscription(ctx context.Context, id string) (*domain.Subscription, error)
	GetDelivery(ctx context.Context, id string) (*domain.DeliveryAttemptRecord, error)
	CreateDelivery(ctx context.Context, rec *domain.DeliveryAttemptRecord) error
	UpdateDelivery(ctx context.Context, rec *domain.DeliveryAttemptRecord) error
}

// Broadcaster receives live delivery updates.
type Broadcaster interface {
	Broadcast(event ws.DeliveryEvent)
}

// Policy controls attempts and backoff.
type Policy struct {
	MaxAttempts int
	RetryBase   time.Duration
	UserAgent   string
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		RetryBase:   time.Second,
		UserAgent:   "TaskFlow-Webhook/1.0",
	}
}

// Backoff is the wait before the attempt that will carry retryCount.
func (p Policy) Backoff(retryCount int) time.Duration {
	return p.RetryBase * time.Duration(1<<retryCount)
}

// NewHTTPClient returns the client shared by all deliveries. Redirects are
// not followed, so a 3xx is classified like any other non-2xx answer.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Deliverer performs one HTTP attempt per job and moves the delivery record
// through pending → success | failed, scheduling retries in between.
type Deliverer struct {
	httpClient *http.Client
	store      DeliveryStore
	scheduler  Scheduler
	policy     Policy
	hub        Broadcaster
	health     *engine.HealthTracker
	logger     *slog.Logger
}

// NewDeliverer builds a deliverer around the shared HTTP client. hub and
// health may be nil.
func NewDeliverer(st DeliveryStore, httpClient *http.Client, scheduler Scheduler, policy Policy, hub Broadcaster, health *engine.HealthTracker, logger *slog.Logger) *Deliverer {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Deliverer{
		httpClient: httpClient,
		store:      st,
		scheduler:  scheduler,
		policy:     policy,
		hub:        hub,
		health:     health,
		logger:     logger,
	}
}

// Deliver runs one attempt of job. It never returns an error: every outcome
// is written to the delivery log, and log write failures are only logged.
func (d *Deliverer) Deliver(ctx context.Context, job engine.DeliveryJob) {
	rec := d.record(ctx, &job)

	if job.RetryCount > 0 {
		active, err := d.subscriptionActive(ctx, job.SubscriptionID)
		if err != nil {
			d.logger.Warn("could not check subscription before retry",
				"error", err,
				"subscription_id", job.SubscriptionID,
				"delivery_id", job.DeliveryID,
			)
		} else if !active {
			// Keep what the last attempt observed.
			if stored, err := d.store.GetDelivery(ctx, job.DeliveryID); err == nil && stored != nil {
				rec = stored
			}
			msg := errInactive.Error()
			rec.Status = domain.StatusFailed
			rec.Error = &msg
			rec.NextRetryAt = nil
			d.save(ctx, rec)
			d.logger.Info("retry abandoned, subscription no longer active",
				"subscription_id", job.SubscriptionID,
				"delivery_id", job.DeliveryID,
				"retry_count", job.RetryCount,
			)
			d.publish(job, rec, 0)
			return
		}
	}

	start := time.Now()
	outcome := d.attempt(ctx, job)
	elapsed := time.Since(start).Milliseconds()

	metrics.Deliveries.WithLabelValues(job.Event, outcome.Kind.String()).Inc()
	metrics.Latency.WithLabelValues(job.Event, outcome.Kind.String()).Observe(float64(elapsed))

	rec.HTTPStatusCode = outcome.StatusCode
	rec.ResponseSnippet = nil
	if outcome.Body != "" {
		snippet := domain.Truncate(outcome.Body, domain.ResponseSnippetLimit)
		rec.ResponseSnippet = &snippet
	}
	rec.Error = nil
	rec.NextRetryAt = nil

	switch {
	case outcome.Kind == domain.OutcomeSuccess:
		rec.Status = domain.StatusSuccess
		d.save(ctx, rec)
		d.health.RecordSuccess(ctx, job.SubscriptionID)
		d.logger.Info("delivery successful",
			"delivery_id", rec.ID,
			"subscription_id", job.SubscriptionID,
			"event", job.Event,
			"retry_count", rec.RetryCount,
			"status_code", *outcome.StatusCode,
			"response_time_ms", elapsed,
		)

	case outcome.Kind == domain.OutcomeTransient && job.RetryCount < d.policy.MaxAttempts-1:
		next := job
		next.DeliveryID = rec.ID
		next.RetryCount = job.RetryCount + 1
		delay := d.policy.Backoff(next.RetryCount)
		dueAt := time.Now().Add(delay).UTC()

		errMsg := domain.Truncate(outcome.Message, domain.ErrorMessageLimit)
		rec.Status = domain.StatusPending
		rec.RetryCount = next.RetryCount
		rec.Error = &errMsg
		rec.NextRetryAt = &dueAt
		d.save(ctx, rec)

		if err := d.scheduler.Schedule(ctx, next, delay); err != nil {
			d.logger.Error("failed to schedule retry", "error", err, "delivery_id", rec.ID)
			d.fail(ctx, job, rec, fmt.Sprintf("%s; retry not scheduled: %v", outcome.Message, err))
			break
		}
		metrics.Retries.WithLabelValues(job.Event).Inc()
		d.logger.Warn("delivery failed, retry scheduled",
			"delivery_id", rec.ID,
			"subscription_id", job.SubscriptionID,
			"event", job.Event,
			"error", outcome.Message,
			"retry_count", rec.RetryCount,
			"retry_in", delay.String(),
		)

	default:
		d.fail(ctx, job, rec, outcome.Message)
	}

	d.publish(job, rec, elapsed)
}

// record returns the delivery record for this attempt, creating it on the
// first attempt. A failed insert is logged and delivery continues.
func (d *Deliverer) record(ctx context.Context, job *engine.DeliveryJob) *domain.DeliveryAttemptRecord {
	rec := &domain.DeliveryAttemptRecord{
		ID:             job.DeliveryID,
		SubscriptionID: job.SubscriptionID,
		Event:          job.Event,
		Status:         domain.StatusPending,
		RetryCount:     job.RetryCount,
		Payload:        job.Body,
	}
	if job.IsRetry() {
		return rec
	}

	if err := d.store.CreateDelivery(ctx, rec); err != nil {
		d.logger.Error("failed to create delivery record",
			"error", err,
			"subscription_id", job.SubscriptionID,
			"event", job.Event,
		)
		return rec
	}
	job.DeliveryID = rec.ID
	return rec
}

func (d *Deliverer) subscriptionActive(ctx context.Context, id string) (bool, error) {
	sub, err := d.store.GetSubscription(ctx, id)
	if err != nil {
		return false, err
	}
	return sub != nil && sub.Active, nil
}

// attempt performs exactly one outbound POST and classifies the result.
func (d *Deliverer) attempt(ctx context.Context, job engine.DeliveryJob) domain.Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.EndpointURL, bytes.NewReader(job.Body))
	if err != nil {
		return domain.RequestFailure(fmt.Errorf("building request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", d.policy.UserAgent)
	if job.Signature != "" {
		req.Header.Set(signature.Header, job.Signature)
	}
	req.Header.Set(EventHeader, job.Event)
	if job.DeliveryID != "" {
		req.Header.Set(DeliveryHeader, job.DeliveryID)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return domain.TransportFailure(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, readLimit))
	return domain.ClassifyResponse(resp.StatusCode, string(body))
}

func (d *Deliverer) fail(ctx context.Context, job engine.DeliveryJob, rec *domain.DeliveryAttemptRecord, msg string) {
	errMsg := domain.Truncate(msg, domain.ErrorMessageLimit)
	rec.Status = domain.StatusFailed
	rec.Error = &errMsg
	rec.NextRetryAt = nil
	d.save(ctx, rec)
	d.health.RecordFailure(ctx, job.SubscriptionID, errMsg)

	d.logger.Warn("delivery failed",
		"delivery_id", rec.ID,
		"subscription_id", job.SubscriptionID,
		"event", job.Event,
		"error", msg,
		"retry_count", rec.RetryCount,
	)
}

// save writes rec; persistence failures never affect delivery.
func (d *Deliverer) save(ctx context.Context, rec *domain.DeliveryAttemptRecord) {
	if rec.ID == "" {
		return
	}
	err := d.store.UpdateDelivery(ctx, rec)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// Removed with its subscription or by retention.
		d.logger.Debug("delivery record gone", "delivery_id", rec.ID)
	case err != nil:
		d.logger.Error("failed to update delivery record",
			"error", err,
			"delivery_id", rec.ID,
			"status", rec.Status,
		)
	}
}

func (d *Deliverer) publish(job engine.DeliveryJob, rec *domain.DeliveryAttemptRecord, elapsed int64) {
	if d.hub == nil {
		return
	}

	eventType := ws.TypeDeliveryFailed
	switch rec.Status {
	case domain.StatusSuccess:
		eventType = ws.TypeDeliverySuccess
	case domain.StatusPending:
		eventType = ws.TypeDeliveryRetrying
	}

	ev := ws.DeliveryEvent{
		Type:           eventType,
		DeliveryID:     rec.ID,
		SubscriptionID: job.SubscriptionID,
		Event:          job.Event,
		EndpointURL:    job.EndpointURL,
		RetryCount:     rec.RetryCount,
		StatusCode:     rec.HTTPStatusCode,
		ResponseMs:     elapsed,
		Timestamp:      time.Now().UTC(),
	}
	if rec.Error != nil {
		ev.Error = *rec.Error
	}
	d.hub.Broadcast(ev)
}
