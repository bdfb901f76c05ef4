package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Priya8975/taskflow-webhooks/internal/domain"
	"github.com/jackc/pgx/v5"
)

const subscriptionColumns = `id, company_id, project_id, url, secret, events, active, description, created_at, updated_at`

func scanSubscription(row scanner) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(
		&sub.ID, &sub.CompanyID, &sub.ProjectID, &sub.URL, &sub.Secret,
		&sub.Events, &sub.Active, &sub.Description, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func collectSubscriptions(rows pgx.Rows) ([]domain.Subscription, error) {
	defer rows.Close()

	subs := []domain.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subscriptions: %w", err)
	}
	return subs, nil
}

// FindMatchingSubscriptions returns active subscriptions of companyID that
// want event and are either company-wide or scoped to projectID. An empty
// projectID matches company-wide subscriptions only.
func (s *PostgresStore) FindMatchingSubscriptions(ctx context.Context, companyID, projectID, event string) ([]domain.Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM webhooks
		WHERE active = true
		  AND company_id = $1
		  AND $2 = ANY(events)
		  AND (project_id IS NULL OR project_id = $3)
	`, companyID, event, nullIfEmpty(projectID))
	if err != nil {
		return nil, fmt.Errorf("finding matching subscriptions: %w", err)
	}
	return collectSubscriptions(rows)
}

func (s *PostgresStore) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	sub, err := scanSubscription(s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+` FROM webhooks WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying subscription: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) ListSubscriptions(ctx context.Context, companyID string) ([]domain.Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM webhooks
		WHERE company_id = $1
		ORDER BY created_at DESC
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	return collectSubscriptions(rows)
}

func (s *PostgresStore) CreateSubscription(ctx context.Context, companyID string, req domain.CreateSubscriptionRequest) (*domain.Subscription, error) {
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	sub, err := scanSubscription(s.pool.QueryRow(ctx, `
		INSERT INTO webhooks (company_id, project_id, url, secret, events, active, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+subscriptionColumns,
		companyID, emptyToNil(req.ProjectID), req.URL, emptyToNil(req.Secret), req.Events, active, req.Description,
	))
	if err != nil {
		return nil, fmt.Errorf("inserting subscription: %w", err)
	}
	return sub, nil
}

// UpdateSubscription applies the non-nil fields of req. An empty secret or
// project id clears the column.
func (s *PostgresStore) UpdateSubscription(ctx context.Context, companyID, id string, req domain.UpdateSubscriptionRequest) (*domain.Subscription, error) {
	setClauses := []string{}
	args := []any{}
	argIdx := 1

	set := func(column string, value any) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}

	if req.URL != nil {
		set("url", *req.URL)
	}
	if req.Events != nil {
		set("events", *req.Events)
	}
	if req.Secret != nil {
		set("secret", emptyToNil(req.Secret))
	}
	if req.Description != nil {
		set("description", *req.Description)
	}
	if req.Active != nil {
		set("active", *req.Active)
	}
	if req.ProjectID != nil {
		set("project_id", emptyToNil(req.ProjectID))
	}

	if len(setClauses) == 0 {
		sub, err := s.GetSubscription(ctx, id)
		if err != nil {
			return nil, err
		}
		if sub == nil || sub.CompanyID != companyID {
			return nil, ErrNotFound
		}
		return sub, nil
	}

	setClauses = append(setClauses, "updated_at = NOW()")

	query := fmt.Sprintf(`
		UPDATE webhooks SET %s
		WHERE id = $%d AND company_id = $%d
		RETURNING %s
	`, strings.Join(setClauses, ", "), argIdx, argIdx+1, subscriptionColumns)
	args = append(args, id, companyID)

	sub, err := scanSubscription(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("updating subscription: %w", err)
	}
	return sub, nil
}

// DeleteSubscription removes the subscription; its delivery records go with
// it through ON DELETE CASCADE.
func (s *PostgresStore) DeleteSubscription(ctx context.Context, companyID, id string) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM webhooks WHERE id = $1 AND company_id = $2`, id, companyID)
	if err != nil {
		return fmt.Errorf("deleting subscription: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ProjectCompanyID returns the company owning projectID, or "" when the
// project is unknown.
func (s *PostgresStore) ProjectCompanyID(ctx context.Context, projectID string) (string, error) {
	var companyID string
	err := s.pool.QueryRow(ctx, `SELECT company_id FROM projects WHERE id = $1`, projectID).Scan(&companyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("querying project company: %w", err)
	}
	return companyID, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
