package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Priya8975/taskflow-webhooks/internal/engine"
	"github.com/Priya8975/taskflow-webhooks/internal/metrics"
)

// Handler processes one delivery job.
type Handler func(ctx context.Context, job engine.DeliveryJob)

// Pool manages a fixed number of worker goroutines that process delivery jobs.
type Pool struct {
	numWorkers int
	jobs       chan engine.DeliveryJob
	done       chan struct{}
	stopOnce   sync.Once
	logger     *slog.Logger
	wg         sync.WaitGroup
}

func NewPool(numWorkers int, logger *slog.Logger) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan engine.DeliveryJob, numWorkers*2),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Start launches the workers. They run until Stop is called or ctx is
// cancelled.
func (p *Pool) Start(ctx context.Context, handle Handler) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, handle)
	}
	p.logger.Info("worker pool started", "num_workers", p.numWorkers)
}

// Submit hands a job to the workers without blocking the caller. When the
// buffer is full the job waits in its own goroutine for room or shutdown.
func (p *Pool) Submit(job engine.DeliveryJob) {
	select {
	case <-p.done:
		p.logger.Warn("worker pool stopped, dropping delivery job",
			"subscription_id", job.SubscriptionID,
			"delivery_id", job.DeliveryID,
		)
		return
	default:
	}

	select {
	case p.jobs <- job:
		metrics.QueueDepth.Set(float64(len(p.jobs)))
	default:
		go func() {
			select {
			case p.jobs <- job:
			case <-p.done:
				p.logger.Warn("worker pool stopped, dropping delivery job",
					"subscription_id", job.SubscriptionID,
					"delivery_id", job.DeliveryID,
				)
			}
		}()
	}
}

// Stop signals the workers and waits for in-flight deliveries to finish.
// Buffered jobs that were not started are dropped.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.done) })
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) worker(ctx context.Context, handle Handler) {
	defer p.wg.Done()

	for {
		select {
		case <-p.done:
			return
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			metrics.QueueDepth.Set(float64(len(p.jobs)))
			handle(ctx, job)
		}
	}
}
