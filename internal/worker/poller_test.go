package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Priya8975/taskflow-webhooks/internal/domain"
	"github.com/Priya8975/taskflow-webhooks/internal/engine"
	"github.com/Priya8975/taskflow-webhooks/internal/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type recordingSubmitter struct {
	mu   sync.Mutex
	jobs []engine.DeliveryJob
}

func (r *recordingSubmitter) Submit(job engine.DeliveryJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
}

func (r *recordingSubmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func setupRetryQueue(t *testing.T) *engine.RetryQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return engine.NewRetryQueue(client, testLogger())
}

func TestRetryPoller_SubmitsDueJobs(t *testing.T) {
	queue := setupRetryQueue(t)
	sub := &recordingSubmitter{}
	poller := NewRetryPoller(queue, sub, testLogger())
	poller.pollInterval = 10 * time.Millisecond

	sched := NewRedisScheduler(queue)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sched.Schedule(ctx, engine.DeliveryJob{DeliveryID: "d-now", RetryCount: 1}, 0); err != nil {
		t.Fatal(err)
	}
	if err := sched.Schedule(ctx, engine.DeliveryJob{DeliveryID: "d-later", RetryCount: 1}, time.Hour); err != nil {
		t.Fatal(err)
	}

	go poller.Start(ctx)

	waitFor(t, 2*time.Second, func() bool { return sub.count() == 1 })
	time.Sleep(50 * time.Millisecond)

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.jobs) != 1 || sub.jobs[0].DeliveryID != "d-now" {
		t.Errorf("expected only the due job, got %+v", sub.jobs)
	}
	if depth, _ := queue.Depth(ctx); depth != 1 {
		t.Errorf("expected the future job to stay queued, depth %d", depth)
	}
}

func TestDurableRetries_EndToEnd(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	logger := testLogger()
	queue := setupRetryQueue(t)
	st := store.NewMemory()
	pool := NewPool(2, logger)
	deliverer := NewDeliverer(st, &http.Client{Timeout: 5 * time.Second}, NewRedisScheduler(queue), testPolicy(10*time.Millisecond), nil, nil, logger)
	poller := NewRetryPoller(queue, pool, logger)
	poller.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx, deliverer.Deliver)
	go poller.Start(ctx)
	defer func() {
		cancel()
		pool.Stop()
	}()

	sub, err := st.CreateSubscription(ctx, "C", domain.CreateSubscriptionRequest{
		URL: server.URL, Events: []string{domain.EventSprintStarted},
	})
	if err != nil {
		t.Fatal(err)
	}
	engine.NewDispatcher(st, pool, logger).Dispatch(ctx, domain.EventSprintStarted, map[string]any{"id": "s-1"}, "", "C")

	var rec domain.DeliveryAttemptRecord
	waitFor(t, 2*time.Second, func() bool {
		recs, _ := st.ListDeliveries(ctx, store.DeliveryFilter{SubscriptionID: sub.ID})
		if len(recs) == 0 || !recs[0].Terminal() {
			return false
		}
		rec = recs[0]
		return true
	})

	if rec.Status != domain.StatusSuccess || rec.RetryCount != 1 {
		t.Errorf("expected success after one durable retry, got %s/%d", rec.Status, rec.RetryCount)
	}
	if requests.Load() != 2 {
		t.Errorf("expected 2 requests, got %d", requests.Load())
	}
}
