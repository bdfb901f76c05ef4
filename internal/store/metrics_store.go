package store

import (
	"context"
	"fmt"
)

// DeliveryStats returns aggregated delivery statistics for one company.
func (s *PostgresStore) DeliveryStats(ctx context.Context, companyID string) (*DeliveryStats, error) {
	var m DeliveryStats

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE l.status = 'success') AS success,
			COUNT(*) FILTER (WHERE l.status = 'failed') AS failed,
			COUNT(*) FILTER (WHERE l.status = 'pending') AS pending,
			COALESCE(SUM(l.retry_count), 0) AS retries
		FROM webhook_logs l
		JOIN webhooks w ON w.id = l.webhook_id
		WHERE w.company_id = $1
	`, companyID).Scan(&m.TotalDeliveries, &m.SuccessCount, &m.FailedCount, &m.PendingCount, &m.TotalRetries)
	if err != nil {
		return nil, fmt.Errorf("querying delivery stats: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM webhooks WHERE company_id = $1 AND active = true
	`, companyID).Scan(&m.ActiveSubscriptions)
	if err != nil {
		return nil, fmt.Errorf("querying active subscriptions: %w", err)
	}

	m.computeRate()
	return &m, nil
}
