package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Priya8975/taskflow-webhooks/internal/config"
)

// RetryLostReason is the error written to a pending record whose retry was
// never attempted, e.g. because the process stopped while its timer waited.
const RetryLostReason = "retry lost"

// Pruner deletes expired delivery records.
type Pruner interface {
	ExpireStaleRetries(ctx context.Context, dueBefore time.Time, reason string) (int64, error)
	PruneDeliveries(ctx context.Context, olderThan time.Time, keepPerSubscription int) (int64, error)
}

// Janitor periodically applies the delivery log retention policy.
type Janitor struct {
	store  Pruner
	policy config.RetentionConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewJanitor(store Pruner, policy config.RetentionConfig, logger *slog.Logger) *Janitor {
	return &Janitor{
		store:  store,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// Start sweeps once immediately and then on every interval until ctx is
// cancelled.
func (j *Janitor) Start(ctx context.Context) {
	interval := j.policy.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := j.RunOnce(ctx); err != nil {
			j.logger.Error("delivery log retention sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce fails retries that are overdue by more than StaleRetryAfter, then
// deletes records older than the retention age and trims each subscription to
// its newest records. Pending records are kept.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	now := j.now()
	if j.policy.StaleRetryAfter > 0 {
		expired, err := j.store.ExpireStaleRetries(ctx, now.Add(-j.policy.StaleRetryAfter), RetryLostReason)
		if err != nil {
			return 0, fmt.Errorf("expiring stale retries: %w", err)
		}
		if expired > 0 {
			j.logger.Warn("failed delivery records with lost retries", "count", expired)
		}
	}

	cutoff := now.Add(-j.policy.MaxAge)
	deleted, err := j.store.PruneDeliveries(ctx, cutoff, j.policy.MaxPerSubscription)
	if err != nil {
		return 0, fmt.Errorf("pruning delivery logs: %w", err)
	}
	if deleted > 0 {
		j.logger.Info("pruned delivery logs",
			"deleted", deleted,
			"older_than", cutoff.UTC().Format(time.RFC3339),
			"keep_per_subscription", j.policy.MaxPerSubscription,
		)
	}
	return deleted, nil
}
