package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rishik-v/pulseguard/internal/models"
)

// Every method takes a context.Context first: these are the only places the
// process does blocking I/O, and the caller (an HTTP request or the async
// notifier) decides the deadline. The realtime hub never calls into this
// package — its handlers must stay non-blocking, so all persistence goes
// through the notifier's background writes or the REST layer.

// AlertRepository persists canonical alert records and their terminal
// status change.
type AlertRepository interface {
	// Create inserts the alert exactly as the fan-out engine built it.
	Create(ctx context.Context, alert *models.Alert) error

	// GetByID returns a single alert. Returns nil, nil if not found.
	GetByID(ctx context.Context, alertID string) (*models.Alert, error)

	// MarkResolved flips status to resolved and records who and when.
	// No-op (nil error) for unknown or already-resolved alerts — resolution
	// is idempotent by design.
	MarkResolved(ctx context.Context, alertID, resolvedBy string, at time.Time) error

	// ListByRecipient returns alerts that named userID as a recipient or
	// were triggered by them, newest first.
	ListByRecipient(ctx context.Context, userID string, limit int) ([]models.Alert, error)
}

// NotificationRepository tracks pending out-of-band deliveries for
// recipients who were offline at fan-out time.
type NotificationRepository interface {
	// CreateBatch inserts one pending row per offline recipient.
	CreateBatch(ctx context.Context, alertID string, recipients []string, at time.Time) error

	// ListPending returns a recipient's unread notifications, newest first.
	// Returns empty slice (not nil) so JSON serializes to [] not null.
	ListPending(ctx context.Context, recipientID string) ([]models.Notification, error)

	// MarkRead marks one notification read, scoped to its recipient so a
	// user cannot ack someone else's inbox. Returns false if no row matched.
	MarkRead(ctx context.Context, id int64, recipientID string) (bool, error)
}

// ChatMessageRepository persists emergency-chat transcripts.
type ChatMessageRepository interface {
	// Create inserts the message. Inserting an id that already exists is a
	// no-op, not an error — the relay and an external writer may both hold
	// the same durable id.
	Create(ctx context.Context, msg *models.ChatMessage) error

	// ListByAlert returns messages in a room, newest first.
	// Cursor-based: before=0 means "from the top" (latest).
	ListByAlert(ctx context.Context, alertID string, before int64, limit int) ([]models.ChatMessage, error)
}

// UserRepository handles portal member rows.
type UserRepository interface {
	// Create inserts a new user and returns it with ID and CreatedAt populated.
	Create(ctx context.Context, email, displayName, role, passwordHash string) (*models.User, error)

	// GetByID returns a user by ID. Returns nil, nil if not found.
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)

	// GetByEmail looks up a user by email. Used for login.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}
