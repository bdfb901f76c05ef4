package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

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

type testAPI struct {
	handler http.Handler
	st      *store.MemoryStore
	jobs    *recordingSubmitter
	health  *engine.HealthTracker
}

func setupAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	st := store.NewMemory()
	jobs := &recordingSubmitter{}
	health := engine.NewHealthTracker(client, logger)
	dispatcher := engine.NewDispatcher(st, jobs, logger)

	return &testAPI{
		handler: NewRouter(st, dispatcher, health, nil),
		st:      st,
		jobs:    jobs,
		health:  health,
	}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func (a *testAPI) createWebhook(t *testing.T, company, body string) domain.Subscription {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/v1/companies/"+company+"/webhooks", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d, body %s", rec.Code, rec.Body.String())
	}
	return decode[domain.Subscription](t, rec)
}

func TestHealth(t *testing.T) {
	a := setupAPI(t)

	rec := a.do(t, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if got := decode[HealthResponse](t, rec); got.Status != "healthy" {
		t.Errorf("status = %q", got.Status)
	}
}

func TestWebhookCRUD(t *testing.T) {
	a := setupAPI(t)

	sub := a.createWebhook(t, "C", `{"url":"https://hooks.example.com/in","events":["task.created"],"secret":"abc","description":"ci"}`)
	if sub.ID == "" || sub.CompanyID != "C" || !sub.Active {
		t.Fatalf("unexpected webhook: %+v", sub)
	}

	created := a.do(t, http.MethodPost, "/api/v1/companies/C/webhooks", `{"url":"https://hooks.example.com/other","events":["task.created"],"secret":"xyz"}`)
	if !strings.Contains(created.Body.String(), `"secret":"xyz"`) {
		t.Errorf("create should echo the secret: %s", created.Body.String())
	}
	other := decode[domain.Subscription](t, created)
	for _, path := range []string{"/api/v1/companies/C/webhooks", "/api/v1/companies/C/webhooks/" + other.ID} {
		body := a.do(t, http.MethodGet, path, "").Body.String()
		if strings.Contains(body, "xyz") || strings.Contains(body, "abc") {
			t.Errorf("GET %s leaked a secret: %s", path, body)
		}
		if !strings.Contains(body, `"signed":true`) {
			t.Errorf("GET %s should report signed: %s", path, body)
		}
	}
	if rec := a.do(t, http.MethodDelete, "/api/v1/companies/C/webhooks/"+other.ID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", rec.Code)
	}

	list := decode[[]domain.Subscription](t, a.do(t, http.MethodGet, "/api/v1/companies/C/webhooks", ""))
	if len(list) != 1 || list[0].ID != sub.ID {
		t.Errorf("list = %+v", list)
	}

	rec := a.do(t, http.MethodPatch, "/api/v1/companies/C/webhooks/"+sub.ID, `{"active":false,"events":["task.created","task.deleted"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status %d, body %s", rec.Code, rec.Body.String())
	}
	updated := decode[domain.Subscription](t, rec)
	if updated.Active || len(updated.Events) != 2 {
		t.Errorf("update not applied: %+v", updated)
	}

	if rec := a.do(t, http.MethodGet, "/api/v1/companies/C/webhooks/"+sub.ID, ""); rec.Code != http.StatusOK {
		t.Errorf("get: status %d", rec.Code)
	}

	if rec := a.do(t, http.MethodDelete, "/api/v1/companies/C/webhooks/"+sub.ID, ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete: status %d", rec.Code)
	}
	if rec := a.do(t, http.MethodGet, "/api/v1/companies/C/webhooks/"+sub.ID, ""); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: status %d", rec.Code)
	}
}

func TestWebhookValidation(t *testing.T) {
	a := setupAPI(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"url":`},
		{"missing url", `{"events":["task.created"]}`},
		{"relative url", `{"url":"/hooks","events":["task.created"]}`},
		{"ftp url", `{"url":"ftp://example.com/x","events":["task.created"]}`},
		{"no events", `{"url":"https://example.com/x","events":[]}`},
		{"unknown event", `{"url":"https://example.com/x","events":["task.exploded"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, http.MethodPost, "/api/v1/companies/C/webhooks", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status %d, want 400", rec.Code)
			}
			if got := decode[map[string]string](t, rec); got["error"] == "" {
				t.Error("expected an error message")
			}
		})
	}
}

func TestWebhookTenantIsolation(t *testing.T) {
	a := setupAPI(t)
	sub := a.createWebhook(t, "C", `{"url":"https://a.example.com","events":["task.created"]}`)

	paths := []struct {
		method, body string
	}{
		{http.MethodGet, ""},
		{http.MethodPatch, `{"active":false}`},
		{http.MethodDelete, ""},
	}
	for _, p := range paths {
		rec := a.do(t, p.method, "/api/v1/companies/OTHER/webhooks/"+sub.ID, p.body)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s from another company: status %d, want 404", p.method, rec.Code)
		}
	}

	if rec := a.do(t, http.MethodGet, "/api/v1/companies/OTHER/webhooks/"+sub.ID+"/logs", ""); rec.Code != http.StatusNotFound {
		t.Errorf("logs from another company: status %d", rec.Code)
	}
}

func TestTriggerEvent(t *testing.T) {
	a := setupAPI(t)
	a.st.AddProject("P1", "C")
	a.createWebhook(t, "C", `{"url":"https://a.example.com","events":["task.created"],"secret":"k"}`)
	a.createWebhook(t, "C", `{"url":"https://b.example.com","events":["task.created"],"project_id":"P2"}`)

	rec := a.do(t, http.MethodPost, "/api/v1/events", `{"event":"task.created","data":{"id":"t-1"},"project_id":"P1"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	got := decode[createEventResponse](t, rec)
	if got.DeliveriesQueued != 1 || got.Event != "task.created" {
		t.Errorf("response = %+v", got)
	}

	a.jobs.mu.Lock()
	defer a.jobs.mu.Unlock()
	if len(a.jobs.jobs) != 1 || a.jobs.jobs[0].EndpointURL != "https://a.example.com" {
		t.Fatalf("jobs = %+v", a.jobs.jobs)
	}
	if !strings.Contains(string(a.jobs.jobs[0].Body), `"data":{"id":"t-1"}`) {
		t.Errorf("body = %s", a.jobs.jobs[0].Body)
	}
}

func TestTriggerEventValidation(t *testing.T) {
	a := setupAPI(t)

	for _, body := range []string{`{"data":{}}`, `{"event":"nope"}`, `not json`} {
		if rec := a.do(t, http.MethodPost, "/api/v1/events", body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", body, rec.Code)
		}
	}

	// Unresolvable company is accepted and queues nothing.
	rec := a.do(t, http.MethodPost, "/api/v1/events", `{"event":"task.created","data":{"id":"t-1"}}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status %d", rec.Code)
	}
	if got := decode[createEventResponse](t, rec); got.DeliveriesQueued != 0 {
		t.Errorf("queued %d, want 0", got.DeliveriesQueued)
	}
}

func TestWebhookLogs(t *testing.T) {
	a := setupAPI(t)
	sub := a.createWebhook(t, "C", `{"url":"https://a.example.com","events":["task.created"]}`)
	ctx := context.Background()

	code := 500
	msg := "HTTP 500 Internal Server Error"
	failed := &domain.DeliveryAttemptRecord{SubscriptionID: sub.ID, Event: "task.created", Status: domain.StatusPending}
	if err := a.st.CreateDelivery(ctx, failed); err != nil {
		t.Fatal(err)
	}
	failed.Status, failed.HTTPStatusCode, failed.Error, failed.RetryCount = domain.StatusFailed, &code, &msg, 2
	if err := a.st.UpdateDelivery(ctx, failed); err != nil {
		t.Fatal(err)
	}
	ok := &domain.DeliveryAttemptRecord{SubscriptionID: sub.ID, Event: "task.created", Status: domain.StatusSuccess}
	if err := a.st.CreateDelivery(ctx, ok); err != nil {
		t.Fatal(err)
	}

	base := "/api/v1/companies/C/webhooks/" + sub.ID + "/logs"

	all := decode[[]domain.DeliveryAttemptRecord](t, a.do(t, http.MethodGet, base, ""))
	if len(all) != 2 {
		t.Errorf("expected 2 logs, got %d", len(all))
	}

	dead := decode[[]domain.DeliveryAttemptRecord](t, a.do(t, http.MethodGet, base+"?status=failed", ""))
	if len(dead) != 1 || dead[0].ID != failed.ID || dead[0].RetryCount != 2 {
		t.Errorf("failed logs = %+v", dead)
	}

	limited := decode[[]domain.DeliveryAttemptRecord](t, a.do(t, http.MethodGet, base+"?limit=1", ""))
	if len(limited) != 1 {
		t.Errorf("limit=1 returned %d", len(limited))
	}

	if rec := a.do(t, http.MethodGet, base+"?status=bogus", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad status filter: %d", rec.Code)
	}

	one := a.do(t, http.MethodGet, base+"/"+failed.ID, "")
	if one.Code != http.StatusOK {
		t.Fatalf("get log: %d", one.Code)
	}
	if got := decode[domain.DeliveryAttemptRecord](t, one); got.Error == nil || *got.Error != msg {
		t.Errorf("log = %+v", got)
	}

	if rec := a.do(t, http.MethodGet, base+"/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing log: %d", rec.Code)
	}
}

func TestStatsAndHealth(t *testing.T) {
	a := setupAPI(t)
	sub := a.createWebhook(t, "C", `{"url":"https://a.example.com","events":["task.created"]}`)
	ctx := context.Background()

	for _, status := range []string{domain.StatusSuccess, domain.StatusSuccess, domain.StatusSuccess, domain.StatusFailed} {
		rec := &domain.DeliveryAttemptRecord{SubscriptionID: sub.ID, Event: "task.created", Status: status}
		if err := a.st.CreateDelivery(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	stats := decode[store.DeliveryStats](t, a.do(t, http.MethodGet, "/api/v1/companies/C/webhook-stats", ""))
	if stats.TotalDeliveries != 4 || stats.SuccessRate != 75 || stats.ActiveSubscriptions != 1 {
		t.Errorf("stats = %+v", stats)
	}

	a.health.RecordFailure(ctx, sub.ID, "HTTP 503")

	type entry struct {
		ID     string                `json:"id"`
		Health engine.EndpointHealth `json:"health"`
	}
	health := decode[[]entry](t, a.do(t, http.MethodGet, "/api/v1/companies/C/webhook-health", ""))
	if len(health) != 1 || health[0].Health.State != engine.HealthDegraded {
		t.Errorf("health = %+v", health)
	}

	a.do(t, http.MethodDelete, "/api/v1/companies/C/webhooks/"+sub.ID, "")
	if s := a.health.GetState(ctx, sub.ID); s.ConsecutiveFailures != 0 {
		t.Errorf("health should be forgotten after delete, got %+v", s)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	a := setupAPI(t)

	rec := a.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("expected Go runtime metrics in the scrape")
	}
}
