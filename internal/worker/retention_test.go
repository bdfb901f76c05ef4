package worker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Priya8975/taskflow-webhooks/internal/config"
	"github.com/Priya8975/taskflow-webhooks/internal/domain"
)

type fakePruner struct {
	olderThan time.Time
	dueBefore time.Time
	keep      int
	calls     int
	expires   int
	deleted   int64
	err       error
}

func (f *fakePruner) ExpireStaleRetries(_ context.Context, dueBefore time.Time, _ string) (int64, error) {
	f.expires++
	f.dueBefore = dueBefore
	return 0, nil
}

func (f *fakePruner) PruneDeliveries(_ context.Context, olderThan time.Time, keep int) (int64, error) {
	f.calls++
	f.olderThan = olderThan
	f.keep = keep
	return f.deleted, f.err
}

func TestJanitor_RunOnce(t *testing.T) {
	now := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	pruner := &fakePruner{deleted: 7}
	j := NewJanitor(pruner, config.RetentionConfig{
		MaxAge:             30 * 24 * time.Hour,
		MaxPerSubscription: 1000,
		Interval:           time.Hour,
		StaleRetryAfter:    10 * time.Minute,
	}, testLogger())
	j.now = func() time.Time { return now }

	deleted, err := j.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 7 {
		t.Errorf("deleted = %d, want 7", deleted)
	}
	if want := time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC); !pruner.olderThan.Equal(want) {
		t.Errorf("cutoff = %v, want %v", pruner.olderThan, want)
	}
	if pruner.keep != 1000 {
		t.Errorf("keep = %d, want 1000", pruner.keep)
	}
	if want := now.Add(-10 * time.Minute); !pruner.dueBefore.Equal(want) {
		t.Errorf("stale retry cutoff = %v, want %v", pruner.dueBefore, want)
	}
}

func TestJanitor_StaleRetryCheckDisabled(t *testing.T) {
	pruner := &fakePruner{}
	policy := config.Default().Retention
	policy.StaleRetryAfter = 0
	j := NewJanitor(pruner, policy, testLogger())

	if _, err := j.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if pruner.expires != 0 {
		t.Errorf("expected no expiry pass, got %d", pruner.expires)
	}
	if pruner.calls != 1 {
		t.Errorf("expected one prune, got %d", pruner.calls)
	}
}

func TestJanitor_RunOnceWrapsErrors(t *testing.T) {
	pruner := &fakePruner{err: errors.New("connection refused")}
	j := NewJanitor(pruner, config.Default().Retention, testLogger())

	if _, err := j.RunOnce(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
}

func TestJanitor_StartSweepsImmediately(t *testing.T) {
	pruner := &fakePruner{}
	j := NewJanitor(pruner, config.Default().Retention, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Start(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	<-done

	if pruner.calls != 1 {
		t.Errorf("expected one sweep, got %d", pruner.calls)
	}
}

func TestJanitor_FailsRetryLostOnShutdown(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	base := 100 * time.Millisecond
	h := newHarness(t, testPolicy(base), &http.Client{Timeout: 5 * time.Second})
	sub := h.subscribe(t, server.URL, "s")
	h.fire(t)

	waitFor(t, 2*time.Second, func() bool {
		rec := h.latest(t, sub.ID)
		return rec != nil && rec.Status == domain.StatusPending && rec.RetryCount == 1
	})
	h.pool.Stop()

	// The retry timer fires into the stopped pool and is dropped.
	time.Sleep(4 * base)
	if requests.Load() != 1 {
		t.Fatalf("expected 1 attempt before shutdown, got %d", requests.Load())
	}
	if rec := h.latest(t, sub.ID); rec.Status != domain.StatusPending {
		t.Fatalf("expected the record to be left pending, got %s", rec.Status)
	}

	policy := config.Default().Retention
	policy.StaleRetryAfter = time.Nanosecond
	if _, err := NewJanitor(h.st, policy, testLogger()).RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	rec := h.latest(t, sub.ID)
	if rec == nil || rec.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %+v", rec)
	}
	if rec.Error == nil || *rec.Error != RetryLostReason {
		t.Errorf("error = %v, want %q", rec.Error, RetryLostReason)
	}
	if rec.HTTPStatusCode == nil || *rec.HTTPStatusCode != http.StatusInternalServerError {
		t.Errorf("last status code should be kept, got %v", rec.HTTPStatusCode)
	}

	policy.MaxAge = time.Nanosecond
	pruned, err := NewJanitor(h.st, policy, testLogger()).RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if pruned != 1 || h.latest(t, sub.ID) != nil {
		t.Errorf("expected the failed record to be pruned, pruned=%d", pruned)
	}
}
