package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rishik-v/pulseguard/internal/models"
)

type AlertStore struct {
	pool *pgxpool.Pool
}

func NewAlertStore(pool *pgxpool.Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

func (s *AlertStore) Create(ctx context.Context, alert *models.Alert) error {
	// The id comes from the engine, not the database — it has to match the
	// id already pushed to live recipients.
	query := `
		INSERT INTO alerts (
			id, user_id, user_name, user_email, location, description,
			status, notified_users, extreme_mode, has_video, activated_from,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		alert.ID,
		alert.UserID,
		alert.UserName,
		alert.UserEmail,
		alert.Location,
		alert.Description,
		alert.Status,
		alert.NotifiedUsers,
		alert.ExtremeMode,
		alert.HasVideo,
		alert.ActivatedFrom,
		alert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (s *AlertStore) GetByID(ctx context.Context, alertID string) (*models.Alert, error) {
	query := `
		SELECT id, user_id, user_name, user_email, location, description,
		       status, notified_users, extreme_mode, has_video, activated_from,
		       created_at, resolved_at, resolved_by
		FROM alerts
		WHERE id = $1`

	var a models.Alert
	var resolvedBy *string
	err := s.pool.QueryRow(ctx, query, alertID).Scan(
		&a.ID,
		&a.UserID,
		&a.UserName,
		&a.UserEmail,
		&a.Location,
		&a.Description,
		&a.Status,
		&a.NotifiedUsers,
		&a.ExtremeMode,
		&a.HasVideo,
		&a.ActivatedFrom,
		&a.CreatedAt,
		&a.ResolvedAt,
		&resolvedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get alert: %w", err)
	}
	if resolvedBy != nil {
		a.ResolvedBy = *resolvedBy
	}
	return &a, nil
}

func (s *AlertStore) MarkResolved(ctx context.Context, alertID, resolvedBy string, at time.Time) error {
	// Only the active → resolved edge exists. A second resolve matches zero
	// rows, which is fine — resolution is idempotent.
	query := `
		UPDATE alerts
		SET status = $1, resolved_at = $2, resolved_by = $3
		WHERE id = $4 AND status = $5`

	_, err := s.pool.Exec(ctx, query,
		models.AlertStatusResolved, at, resolvedBy, alertID, models.AlertStatusActive)
	if err != nil {
		return fmt.Errorf("resolve alert: %w", err)
	}
	return nil
}

func (s *AlertStore) ListByRecipient(ctx context.Context, userID string, limit int) ([]models.Alert, error) {
	query := `
		SELECT id, user_id, user_name, user_email, location, description,
		       status, notified_users, extreme_mode, has_video, activated_from,
		       created_at, resolved_at, resolved_by
		FROM alerts
		WHERE user_id = $1 OR $1 = ANY(notified_users)
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]models.Alert, 0)
	for rows.Next() {
		var a models.Alert
		var resolvedBy *string
		if err := rows.Scan(
			&a.ID,
			&a.UserID,
			&a.UserName,
			&a.UserEmail,
			&a.Location,
			&a.Description,
			&a.Status,
			&a.NotifiedUsers,
			&a.ExtremeMode,
			&a.HasVideo,
			&a.ActivatedFrom,
			&a.CreatedAt,
			&a.ResolvedAt,
			&resolvedBy,
		); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if resolvedBy != nil {
			a.ResolvedBy = *resolvedBy
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}

	return alerts, nil
}
