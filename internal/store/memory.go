package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/Priya8975/taskflow-webhooks/internal/domain"
	"github.com/google/uuid"
)

// MemoryStore is an in-process store used when no DATABASE_URL is set and
// in tests. It mirrors PostgresStore semantics, including cascade delete.
type MemoryStore struct {
	mu         sync.RWMutex
	subs       map[string]domain.Subscription
	deliveries map[string]domain.DeliveryAttemptRecord
	projects   map[string]string // project id -> company id
	now        func() time.Time
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		subs:       map[string]domain.Subscription{},
		deliveries: map[string]domain.DeliveryAttemptRecord{},
		projects:   map[string]string{},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// AddProject registers the owning company of a project.
func (m *MemoryStore) AddProject(projectID, companyID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[projectID] = companyID
}

func (m *MemoryStore) ProjectCompanyID(_ context.Context, projectID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.projects[projectID], nil
}

func (m *MemoryStore) FindMatchingSubscriptions(_ context.Context, companyID, projectID, event string) ([]domain.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []domain.Subscription{}
	for _, s := range m.subs {
		if s.Matches(companyID, projectID, event) {
			out = append(out, cloneSubscription(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) GetSubscription(_ context.Context, id string) (*domain.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.subs[id]
	if !ok {
		return nil, nil
	}
	c := cloneSubscription(s)
	return &c, nil
}

func (m *MemoryStore) ListSubscriptions(_ context.Context, companyID string) ([]domain.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []domain.Subscription{}
	for _, s := range m.subs {
		if s.CompanyID == companyID {
			out = append(out, cloneSubscription(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) CreateSubscription(_ context.Context, companyID string, req domain.CreateSubscriptionRequest) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	s := domain.Subscription{
		ID:          uuid.New().String(),
		CompanyID:   companyID,
		ProjectID:   copyPtr(emptyToNil(req.ProjectID)),
		URL:         req.URL,
		Secret:      copyPtr(emptyToNil(req.Secret)),
		Events:      append([]string(nil), req.Events...),
		Active:      req.Active == nil || *req.Active,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.subs[s.ID] = s
	c := cloneSubscription(s)
	return &c, nil
}

func (m *MemoryStore) UpdateSubscription(_ context.Context, companyID, id string, req domain.UpdateSubscriptionRequest) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.subs[id]
	if !ok || s.CompanyID != companyID {
		return nil, ErrNotFound
	}
	if req.URL != nil {
		s.URL = *req.URL
	}
	if req.Events != nil {
		s.Events = append([]string(nil), (*req.Events)...)
	}
	if req.Secret != nil {
		s.Secret = copyPtr(emptyToNil(req.Secret))
	}
	if req.Description != nil {
		s.Description = *req.Description
	}
	if req.Active != nil {
		s.Active = *req.Active
	}
	if req.ProjectID != nil {
		s.ProjectID = copyPtr(emptyToNil(req.ProjectID))
	}
	s.UpdatedAt = m.now()
	m.subs[id] = s

	c := cloneSubscription(s)
	return &c, nil
}

func (m *MemoryStore) DeleteSubscription(_ context.Context, companyID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.subs[id]
	if !ok || s.CompanyID != companyID {
		return ErrNotFound
	}
	delete(m.subs, id)
	for did, d := range m.deliveries {
		if d.SubscriptionID == id {
			delete(m.deliveries, did)
		}
	}
	return nil
}

func (m *MemoryStore) CreateDelivery(_ context.Context, rec *domain.DeliveryAttemptRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	rec.ID = uuid.New().String()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	m.deliveries[rec.ID] = cloneDelivery(*rec)
	return nil
}

func (m *MemoryStore) UpdateDelivery(_ context.Context, rec *domain.DeliveryAttemptRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.deliveries[rec.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Status = rec.Status
	cur.HTTPStatusCode = copyPtr(rec.HTTPStatusCode)
	cur.ResponseSnippet = copyPtr(rec.ResponseSnippet)
	cur.Error = copyPtr(rec.Error)
	cur.RetryCount = rec.RetryCount
	cur.NextRetryAt = copyPtr(rec.NextRetryAt)
	cur.UpdatedAt = m.now()
	rec.UpdatedAt = cur.UpdatedAt
	m.deliveries[rec.ID] = cur
	return nil
}

func (m *MemoryStore) GetDelivery(_ context.Context, id string) (*domain.DeliveryAttemptRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.deliveries[id]
	if !ok {
		return nil, nil
	}
	c := cloneDelivery(d)
	return &c, nil
}

func (m *MemoryStore) ListDeliveries(_ context.Context, f DeliveryFilter) ([]domain.DeliveryAttemptRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []domain.DeliveryAttemptRecord{}
	for _, d := range m.deliveries {
		if f.SubscriptionID != "" && d.SubscriptionID != f.SubscriptionID {
			continue
		}
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		out = append(out, cloneDelivery(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryStore) ExpireStaleRetries(_ context.Context, dueBefore time.Time, reason string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired int64
	for id, d := range m.deliveries {
		if d.Status != domain.StatusPending {
			continue
		}
		due := d.UpdatedAt
		if d.NextRetryAt != nil {
			due = *d.NextRetryAt
		}
		if !due.Before(dueBefore) {
			continue
		}
		msg := reason
		d.Status = domain.StatusFailed
		d.Error = &msg
		d.NextRetryAt = nil
		d.UpdatedAt = m.now()
		m.deliveries[id] = d
		expired++
	}
	return expired, nil
}

func (m *MemoryStore) PruneDeliveries(_ context.Context, olderThan time.Time, keepPerSubscription int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	bySub := map[string][]domain.DeliveryAttemptRecord{}
	for id, d := range m.deliveries {
		if d.Status == domain.StatusPending {
			continue
		}
		if d.CreatedAt.Before(olderThan) {
			delete(m.deliveries, id)
			deleted++
			continue
		}
		bySub[d.SubscriptionID] = append(bySub[d.SubscriptionID], d)
	}

	if keepPerSubscription > 0 {
		for _, recs := range bySub {
			if len(recs) <= keepPerSubscription {
				continue
			}
			sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.After(recs[j].CreatedAt) })
			for _, d := range recs[keepPerSubscription:] {
				delete(m.deliveries, d.ID)
				deleted++
			}
		}
	}
	return deleted, nil
}

func (m *MemoryStore) DeliveryStats(_ context.Context, companyID string) (*DeliveryStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var st DeliveryStats
	for _, s := range m.subs {
		if s.CompanyID == companyID && s.Active {
			st.ActiveSubscriptions++
		}
	}
	for _, d := range m.deliveries {
		s, ok := m.subs[d.SubscriptionID]
		if !ok || s.CompanyID != companyID {
			continue
		}
		st.TotalDeliveries++
		st.TotalRetries += d.RetryCount
		switch d.Status {
		case domain.StatusSuccess:
			st.SuccessCount++
		case domain.StatusFailed:
			st.FailedCount++
		case domain.StatusPending:
			st.PendingCount++
		}
	}
	st.computeRate()
	return &st, nil
}

func cloneSubscription(s domain.Subscription) domain.Subscription {
	s.ProjectID = copyPtr(s.ProjectID)
	s.Secret = copyPtr(s.Secret)
	s.Events = append([]string(nil), s.Events...)
	return s
}

func cloneDelivery(d domain.DeliveryAttemptRecord) domain.DeliveryAttemptRecord {
	d.HTTPStatusCode = copyPtr(d.HTTPStatusCode)
	d.ResponseSnippet = copyPtr(d.ResponseSnippet)
	d.Error = copyPtr(d.Error)
	d.NextRetryAt = copyPtr(d.NextRetryAt)
	d.Payload = append(json.RawMessage(nil), d.Payload...)
	return d
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
