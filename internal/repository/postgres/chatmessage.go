package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rishik-v/pulseguard/internal/models"
)

type ChatMessageStore struct {
	pool *pgxpool.Pool
}

func NewChatMessageStore(pool *pgxpool.Pool) *ChatMessageStore {
	return &ChatMessageStore{pool: pool}
}

func (s *ChatMessageStore) Create(ctx context.Context, msg *models.ChatMessage) error {
	// The message id travels on the wire before it reaches this insert, and
	// an external writer may have persisted the same id first. ON CONFLICT
	// DO NOTHING makes the insert idempotent per id, which is the whole
	// point of stable message identity.
	//
	// seq is a bigserial the transcript endpoint pages on: the text id is
	// globally unique but carries no order, while seq is monotonically
	// increasing and cheap to cursor over.
	query := `
		INSERT INTO chat_messages (id, alert_id, sender_id, user_name, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		msg.ID,
		msg.AlertID,
		msg.SenderID,
		msg.UserName,
		msg.Body,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

func (s *ChatMessageStore) ListByAlert(ctx context.Context, alertID string, before int64, limit int) ([]models.ChatMessage, error) {
	// Cursor-based pagination, same scheme as the notification inbox:
	// before=0 → first page (newest messages), before=N → rows with seq < N.
	var query string
	var args []any

	if before > 0 {
		query = `
			SELECT seq, id, alert_id, sender_id, user_name, body, created_at
			FROM chat_messages
			WHERE alert_id = $1 AND seq < $2
			ORDER BY seq DESC
			LIMIT $3`
		args = []any{alertID, before, limit}
	} else {
		query = `
			SELECT seq, id, alert_id, sender_id, user_name, body, created_at
			FROM chat_messages
			WHERE alert_id = $1
			ORDER BY seq DESC
			LIMIT $2`
		args = []any{alertID, limit}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.ChatMessage, 0)
	for rows.Next() {
		var msg models.ChatMessage
		if err := rows.Scan(
			&msg.Seq,
			&msg.ID,
			&msg.AlertID,
			&msg.SenderID,
			&msg.UserName,
			&msg.Body,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}

	return messages, nil
}
