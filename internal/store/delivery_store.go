package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Priya8975/taskflow-webhooks/internal/domain"
	"github.com/jackc/pgx/v5"
)

const deliveryColumns = `id, webhook_id, event, status, http_status_code, response_snippet, error, retry_count, payload, next_retry_at, created_at, updated_at`

func scanDelivery(row scanner) (*domain.DeliveryAttemptRecord, error) {
	var rec domain.DeliveryAttemptRecord
	err := row.Scan(
		&rec.ID, &rec.SubscriptionID, &rec.Event, &rec.Status,
		&rec.HTTPStatusCode, &rec.ResponseSnippet, &rec.Error, &rec.RetryCount,
		&rec.Payload, &rec.NextRetryAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateDelivery inserts rec and fills in its id and timestamps.
func (s *PostgresStore) CreateDelivery(ctx context.Context, rec *domain.DeliveryAttemptRecord) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO webhook_logs (webhook_id, event, status, http_status_code, response_snippet, error, retry_count, payload, next_retry_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`, rec.SubscriptionID, rec.Event, rec.Status, rec.HTTPStatusCode, rec.ResponseSnippet,
		rec.Error, rec.RetryCount, []byte(rec.Payload), rec.NextRetryAt,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting delivery record: %w", err)
	}
	return nil
}

// UpdateDelivery writes the mutable fields of rec in place.
func (s *PostgresStore) UpdateDelivery(ctx context.Context, rec *domain.DeliveryAttemptRecord) error {
	err := s.pool.QueryRow(ctx, `
		UPDATE webhook_logs
		SET status = $2, http_status_code = $3, response_snippet = $4, error = $5,
		    retry_count = $6, next_retry_at = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, rec.ID, rec.Status, rec.HTTPStatusCode, rec.ResponseSnippet, rec.Error,
		rec.RetryCount, rec.NextRetryAt,
	).Scan(&rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("updating delivery record: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDelivery(ctx context.Context, id string) (*domain.DeliveryAttemptRecord, error) {
	rec, err := scanDelivery(s.pool.QueryRow(ctx, `
		SELECT `+deliveryColumns+` FROM webhook_logs WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying delivery record: %w", err)
	}
	return rec, nil
}

// ListDeliveries returns delivery records, newest first, with optional filtering.
func (s *PostgresStore) ListDeliveries(ctx context.Context, f DeliveryFilter) ([]domain.DeliveryAttemptRecord, error) {
	query := `SELECT ` + deliveryColumns + ` FROM webhook_logs`
	args := []any{}
	argIdx := 1
	conditions := []string{}

	if f.SubscriptionID != "" {
		conditions = append(conditions, fmt.Sprintf("webhook_id = $%d", argIdx))
		args = append(args, f.SubscriptionID)
		argIdx++
	}
	if f.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, f.Status)
		argIdx++
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY created_at DESC"

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, f.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying delivery records: %w", err)
	}
	defer rows.Close()

	records := []domain.DeliveryAttemptRecord{}
	for rows.Next() {
		rec, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating delivery records: %w", err)
	}
	return records, nil
}

// ExpireStaleRetries fails pending records whose retry came due before
// dueBefore without being attempted. A pending record that never got a retry
// time counts from its last update.
func (s *PostgresStore) ExpireStaleRetries(ctx context.Context, dueBefore time.Time, reason string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE webhook_logs
		SET status = 'failed', error = $2, next_retry_at = NULL, updated_at = NOW()
		WHERE status = 'pending' AND COALESCE(next_retry_at, updated_at) < $1
	`, dueBefore, reason)
	if err != nil {
		return 0, fmt.Errorf("expiring stale retries: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PruneDeliveries deletes terminal records created before olderThan and,
// when keepPerSubscription > 0, all but the newest keepPerSubscription
// terminal records of each subscription. Pending records are never pruned.
func (s *PostgresStore) PruneDeliveries(ctx context.Context, olderThan time.Time, keepPerSubscription int) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning prune: %w", err)
	}
	defer tx.Rollback(ctx)

	aged, err := tx.Exec(ctx, `
		DELETE FROM webhook_logs WHERE status <> 'pending' AND created_at < $1
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("pruning aged delivery records: %w", err)
	}
	deleted := aged.RowsAffected()

	if keepPerSubscription > 0 {
		capped, err := tx.Exec(ctx, `
			DELETE FROM webhook_logs WHERE id IN (
				SELECT id FROM (
					SELECT id, ROW_NUMBER() OVER (PARTITION BY webhook_id ORDER BY created_at DESC) AS rn
					FROM webhook_logs
					WHERE status <> 'pending'
				) ranked
				WHERE rn > $1
			)
		`, keepPerSubscription)
		if err != nil {
			return 0, fmt.Errorf("capping delivery records: %w", err)
		}
		deleted += capped.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing prune: %w", err)
	}
	return deleted, nil
}
