package store

import (
	"errors"
)

// ErrNotFound is returned by updates and deletes that match no row. Reads
// return (nil, nil) instead.
var ErrNotFound = errors.New("not found")

// DeliveryFilter narrows ListDeliveries. Zero values mean "any".
type DeliveryFilter struct {
	SubscriptionID string
	Status         string
	Limit          int
}

// DeliveryStats holds aggregated delivery statistics for one company.
type DeliveryStats struct {
	TotalDeliveries     int     `json:"total_deliveries"`
	SuccessCount        int     `json:"success_count"`
	FailedCount         int     `json:"failed_count"`
	PendingCount        int     `json:"pending_count"`
	TotalRetries        int     `json:"total_retries"`
	SuccessRate         float64 `json:"success_rate"`
	ActiveSubscriptions int     `json:"active_subscriptions"`
}

func (m *DeliveryStats) computeRate() {
	if done := m.SuccessCount + m.FailedCount; done > 0 {
		m.SuccessRate = float64(m.SuccessCount) / float64(done) * 100
	}
}
