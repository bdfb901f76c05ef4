package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/Priya8975/taskflow-webhooks/internal/engine"
)

// Scheduler arranges for a retry job to be handed back to the workers after
// delay. Nothing blocks while the retry waits.
type Scheduler interface {
	Schedule(ctx context.Context, job engine.DeliveryJob, delay time.Duration) error
}

// TimerScheduler keeps retries in process timers. Pending retries are lost
// if the process exits.
type TimerScheduler struct {
	submitter engine.Submitter
}

func NewTimerScheduler(submitter engine.Submitter) *TimerScheduler {
	return &TimerScheduler{submitter: submitter}
}

func (s *TimerScheduler) Schedule(_ context.Context, job engine.DeliveryJob, delay time.Duration) error {
	time.AfterFunc(delay, func() { s.submitter.Submit(job) })
	return nil
}

// RedisScheduler stores retries in the durable Redis retry queue, where a
// RetryPoller picks them up once due.
type RedisScheduler struct {
	queue *engine.RetryQueue
	now   func() time.Time
}

func NewRedisScheduler(queue *engine.RetryQueue) *RedisScheduler {
	return &RedisScheduler{queue: queue, now: time.Now}
}

func (s *RedisScheduler) Schedule(ctx context.Context, job engine.DeliveryJob, delay time.Duration) error {
	if err := s.queue.Enqueue(ctx, job, s.now().Add(delay)); err != nil {
		return fmt.Errorf("scheduling durable retry: %w", err)
	}
	return nil
}
