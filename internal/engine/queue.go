package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const RetryQueueKey = "webhook_retry_queue"

// RetryQueue persists scheduled retries in a Redis sorted set scored by the
// time they become due, so they survive a process restart.
type RetryQueue struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRetryQueue(client *redis.Client, logger *slog.Logger) *RetryQueue {
	return &RetryQueue{client: client, logger: logger}
}

// Enqueue stores job to become due at dueAt.
func (q *RetryQueue) Enqueue(ctx context.Context, job DeliveryJob, dueAt time.Time) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshalling retry job: %w", err)
	}

	err = q.client.ZAdd(ctx, RetryQueueKey, redis.Z{
		Score:  float64(dueAt.UnixMicro()),
		Member: string(data),
	}).Err()
	if err != nil {
		return fmt.Errorf("queuing retry to redis: %w", err)
	}
	return nil
}

// ClaimDue removes and returns up to limit jobs due at or before now. A job
// removed by another instance first is skipped, so each job is claimed once.
func (q *RetryQueue) ClaimDue(ctx context.Context, now time.Time, limit int64) ([]DeliveryJob, error) {
	members, err := q.client.ZRangeByScore(ctx, RetryQueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMicro(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("polling retry queue: %w", err)
	}

	jobs := make([]DeliveryJob, 0, len(members))
	for _, member := range members {
		removed, err := q.client.ZRem(ctx, RetryQueueKey, member).Result()
		if err != nil {
			q.logger.Error("failed to remove retry job from queue", "error", err)
			continue
		}
		if removed == 0 {
			continue
		}

		var job DeliveryJob
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			q.logger.Error("failed to unmarshal retry job", "error", err)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Depth returns the number of retries waiting in the queue.
func (q *RetryQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, RetryQueueKey).Result()
}
