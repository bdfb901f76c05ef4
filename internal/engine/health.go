package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Priya8975/taskflow-webhooks/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Endpoint health states.
const (
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
	HealthFailing  = "failing"
)

// HealthTracker keeps a per-subscription Redis hash of consecutive terminal
// delivery failures. It is informational: deliveries are never gated on it.
// A nil tracker is valid and records nothing.
type HealthTracker struct {
	redisClient      *redis.Client
	logger           *slog.Logger
	failingThreshold int
}

// EndpointHealth is the tracked state of one subscription's endpoint.
type EndpointHealth struct {
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastSuccessAt       string `json:"last_success_at,omitempty"`
	LastFailureAt       string `json:"last_failure_at,omitempty"`
	LastError           string `json:"last_error,omitempty"`
}

func NewHealthTracker(redisClient *redis.Client, logger *slog.Logger) *HealthTracker {
	return &HealthTracker{
		redisClient:      redisClient,
		logger:           logger,
		failingThreshold: 5,
	}
}

func healthKey(subscriptionID string) string {
	return fmt.Sprintf("webhook_health:%s", subscriptionID)
}

// RecordSuccess resets the failure streak.
func (h *HealthTracker) RecordSuccess(ctx context.Context, subscriptionID string) {
	if h == nil {
		return
	}
	key := healthKey(subscriptionID)

	prev, _ := h.redisClient.HGet(ctx, key, "failures").Int()

	err := h.redisClient.HSet(ctx, key,
		"failures", 0,
		"last_success_at", time.Now().Unix(),
	).Err()
	if err != nil {
		h.logger.Error("failed to record endpoint success", "error", err, "subscription_id", subscriptionID)
		return
	}

	if prev >= h.failingThreshold {
		h.logger.Info("webhook endpoint recovered",
			"subscription_id", subscriptionID,
			"previous_failures", prev,
		)
	}
}

// RecordFailure extends the failure streak of a delivery that ended failed.
func (h *HealthTracker) RecordFailure(ctx context.Context, subscriptionID, errMsg string) {
	if h == nil {
		return
	}
	key := healthKey(subscriptionID)

	failures, err := h.redisClient.HIncrBy(ctx, key, "failures", 1).Result()
	if err != nil {
		h.logger.Error("failed to record endpoint failure", "error", err, "subscription_id", subscriptionID)
		return
	}

	h.redisClient.HSet(ctx, key,
		"last_failure_at", time.Now().Unix(),
		"last_error", domain.Truncate(errMsg, domain.ErrorMessageLimit),
	)

	if failures == int64(h.failingThreshold) {
		h.logger.Warn("webhook endpoint failing",
			"subscription_id", subscriptionID,
			"consecutive_failures", failures,
		)
	}
}

// GetState returns the tracked health of a subscription's endpoint.
func (h *HealthTracker) GetState(ctx context.Context, subscriptionID string) EndpointHealth {
	if h == nil {
		return EndpointHealth{State: HealthHealthy}
	}

	data, err := h.redisClient.HGetAll(ctx, healthKey(subscriptionID)).Result()
	if err != nil || len(data) == 0 {
		return EndpointHealth{State: HealthHealthy}
	}

	failures, _ := strconv.Atoi(data["failures"])
	result := EndpointHealth{
		State:               h.stateFor(failures),
		ConsecutiveFailures: failures,
		LastSuccessAt:       formatUnix(data["last_success_at"]),
		LastFailureAt:       formatUnix(data["last_failure_at"]),
		LastError:           data["last_error"],
	}
	return result
}

// Forget drops the tracked state of a deleted subscription.
func (h *HealthTracker) Forget(ctx context.Context, subscriptionID string) {
	if h == nil {
		return
	}
	h.redisClient.Del(ctx, healthKey(subscriptionID))
}

func (h *HealthTracker) stateFor(failures int) string {
	switch {
	case failures >= h.failingThreshold:
		return HealthFailing
	case failures > 0:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}

func formatUnix(raw string) string {
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ts <= 0 {
		return ""
	}
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}
