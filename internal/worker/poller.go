package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/Priya8975/taskflow-webhooks/internal/engine"
)

// RetryPoller moves due retries from the durable Redis queue into the
// worker pool.
type RetryPoller struct {
	queue        *engine.RetryQueue
	submitter    engine.Submitter
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int64
}

func NewRetryPoller(queue *engine.RetryQueue, submitter engine.Submitter, logger *slog.Logger) *RetryPoller {
	return &RetryPoller{
		queue:        queue,
		submitter:    submitter,
		logger:       logger,
		pollInterval: 100 * time.Millisecond,
		batchSize:    10,
	}
}

// Start runs the polling loop until ctx is cancelled.
func (p *RetryPoller) Start(ctx context.Context) {
	p.logger.Info("retry poller started")

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("retry poller stopping")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *RetryPoller) poll(ctx context.Context) {
	jobs, err := p.queue.ClaimDue(ctx, time.Now(), p.batchSize)
	if err != nil {
		p.logger.Error("failed to poll retry queue", "error", err)
		return
	}

	for _, job := range jobs {
		p.submitter.Submit(job)
	}
}
