package models

import (
	"time"

	"github.com/google/uuid"
)

// Alert lifecycle status. Transitions only move forward: active → resolved.
// There is no transition back — re-activating means raising a new alert.
type AlertStatus string

const (
	AlertStatusActive   AlertStatus = "active"
	AlertStatusResolved AlertStatus = "resolved"
)

// User is a registered portal member.
//
// Why uuid.UUID for the row ID but string identities on Alert?
//   - The durable user table is ours, so it gets a proper UUID key.
//   - The realtime layer treats identities as opaque strings supplied by
//     clients at register time (a UUID in practice, but the live layer
//     never assumes that). Alert rows store what the wire carried.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Alert is the canonical record of one panic/emergency event.
//
// The ID is deterministic — timestamp plus the triggering identity — because
// uniqueness, not unguessability, is the goal: the same id must name the
// alert in the live push, the chat room, and the durable row.
//
// NotifiedUsers is fixed at creation. The fan-out engine never adds
// recipients after delivery begins.
type Alert struct {
	ID            string      `json:"alertId"`
	UserID        string      `json:"userId"`
	UserName      string      `json:"userName"`
	UserEmail     string      `json:"userEmail"`
	Location      string      `json:"location"`
	Description   string      `json:"description"`
	Status        AlertStatus `json:"status"`
	NotifiedUsers []string    `json:"notifiedUsers"`
	ExtremeMode   bool        `json:"extremeMode"`
	HasVideo      bool        `json:"hasVideo"`
	ActivatedFrom string      `json:"activatedFrom"`
	CreatedAt     time.Time   `json:"timestamp"`
	ResolvedAt    *time.Time  `json:"resolvedAt,omitempty"`
	ResolvedBy    string      `json:"resolvedBy,omitempty"`
}

// Notification is one pending out-of-band delivery for a recipient who was
// offline when an alert fanned out. The notifier writes one row per offline
// recipient; the inbox endpoint drains them.
type Notification struct {
	ID          int64     `json:"id"`
	AlertID     string    `json:"alert_id"`
	RecipientID string    `json:"recipient_id"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChatMessage is one message in an alert's emergency chat room.
//
// ID must be stable across the live broadcast and the persisted copy so a
// client that sees both can deduplicate. When the sending client persisted
// the message first, it passes that durable id along and we reuse it;
// otherwise the relay synthesizes one.
type ChatMessage struct {
	// Seq is the durable store's insertion order, used only as a pagination
	// cursor by the transcript endpoint. Zero for messages that exist only
	// on the wire.
	Seq       int64     `json:"seq,omitempty"`
	ID        string    `json:"id"`
	AlertID   string    `json:"alertId"`
	SenderID  string    `json:"userId"`
	UserName  string    `json:"userName"`
	Body      string    `json:"message"`
	CreatedAt time.Time `json:"timestamp"`
}
