package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rishik-v/pulseguard/internal/models"
)

type NotificationStore struct {
	pool *pgxpool.Pool
}

func NewNotificationStore(pool *pgxpool.Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

// CreateBatch inserts one pending notification per offline recipient in a
// single round trip. One alert can miss dozens of recipients at once, so
// this is the hottest write path in the store — pgx.Batch keeps it to one
// network exchange instead of N.
func (s *NotificationStore) CreateBatch(ctx context.Context, alertID string, recipients []string, at time.Time) error {
	if len(recipients) == 0 {
		return nil
	}

	query := `
		INSERT INTO notifications (alert_id, recipient_id, read, created_at)
		VALUES ($1, $2, false, $3)`

	batch := &pgx.Batch{}
	for _, recipient := range recipients {
		batch.Queue(query, alertID, recipient, at)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range recipients {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
	}
	return nil
}

func (s *NotificationStore) ListPending(ctx context.Context, recipientID string) ([]models.Notification, error) {
	query := `
		SELECT id, alert_id, recipient_id, read, created_at
		FROM notifications
		WHERE recipient_id = $1 AND read = false
		ORDER BY id DESC`

	rows, err := s.pool.Query(ctx, query, recipientID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	notifications := make([]models.Notification, 0)
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(
			&n.ID,
			&n.AlertID,
			&n.RecipientID,
			&n.Read,
			&n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}

	return notifications, nil
}

func (s *NotificationStore) MarkRead(ctx context.Context, id int64, recipientID string) (bool, error) {
	// recipient_id in the WHERE clause is the authorization check: you can
	// only clear rows addressed to you.
	query := `
		UPDATE notifications
		SET read = true
		WHERE id = $1 AND recipient_id = $2 AND read = false`

	tag, err := s.pool.Exec(ctx, query, id, recipientID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
