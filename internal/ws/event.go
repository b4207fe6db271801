package ws

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rishik-v/pulseguard/internal/models"
)

// Wire framing: every frame is a named event plus a JSON payload,
// {"event": "...", "data": {...}}. That is the whole protocol — no binary
// framing, no version field. Request/response is simulated by event pairs
// (a client sends "register", the server answers "registered").

// Inbound event names (client → server).
const (
	EventRegister    = "register"
	EventPanicAlert  = "panic:alert"
	EventAcknowledge = "panic:acknowledge"
	EventResolve     = "panic:resolve"
	EventChatJoin    = "chat:join"
	EventChatSend    = "chat:send_message"
	EventChatLeave   = "chat:leave"
	EventPing        = "ping"
)

// Outbound event names (server → client).
const (
	EventRegistered     = "registered"
	EventNewAlert       = "panic:new_alert"
	EventAlertSent      = "panic:alert_sent"
	EventAlertBroadcast = "panic:alert_broadcast"
	EventAcknowledgment = "panic:acknowledgment"
	EventResolved       = "panic:resolved"
	EventPanicError     = "panic:error"
	EventChatJoined     = "chat:joined"
	EventUserJoined     = "chat:user_joined"
	EventNewMessage     = "chat:new_message"
	EventMessageSent    = "chat:message_sent"
	EventUserLeft       = "chat:user_left"
	EventChatError      = "chat:error"
	EventPong           = "pong"
)

// Caller-input errors. These are reported back to the originating
// connection as a *:error event and go no further — never broadcast,
// never fatal.
var (
	ErrMissingIdentity = errors.New("missing user identity")
	ErrNoRecipients    = errors.New("no recipients configured")
	ErrInvalidMessage  = errors.New("invalid chat message")
)

// Envelope is one inbound frame. Data stays raw until the dispatcher knows
// which payload struct the event name calls for — payloads are dynamic on
// the wire, but they are decoded into a typed struct and validated before
// anything in the hub sees them.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Event is one outbound frame.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

// ---------------------------------------------------------------
// Inbound payloads, one struct per event name. Each carries its own
// Validate so the boundary check lives next to the field list.
// ---------------------------------------------------------------

type RegisterPayload struct {
	UserID         string `json:"userId"`
	SecurityPlanID string `json:"securityPlanId,omitempty"`
}

func (p RegisterPayload) Validate() error {
	if strings.TrimSpace(p.UserID) == "" {
		return ErrMissingIdentity
	}
	return nil
}

type AlertPayload struct {
	UserID        string   `json:"userId"`
	UserName      string   `json:"userName"`
	UserEmail     string   `json:"userEmail"`
	Location      string   `json:"location"`
	Description   string   `json:"description,omitempty"`
	NotifiedUsers []string `json:"notifiedUsers"`
	ExtremeMode   bool     `json:"extremeMode,omitempty"`
	HasVideo      bool     `json:"hasVideo,omitempty"`
	ActivatedFrom string   `json:"activatedFrom,omitempty"`
}

func (p AlertPayload) Validate() error {
	if strings.TrimSpace(p.UserID) == "" {
		return ErrMissingIdentity
	}
	// An alert nobody is configured to receive cannot fan out. This is the
	// one trigger-time failure: no record is created, nothing broadcasts.
	if len(p.NotifiedUsers) == 0 {
		return ErrNoRecipients
	}
	return nil
}

type AckPayload struct {
	AlertID string `json:"alertId"`
	UserID  string `json:"userId"`
}

func (p AckPayload) Validate() error {
	if p.AlertID == "" || p.UserID == "" {
		return ErrMissingIdentity
	}
	return nil
}

type ResolvePayload struct {
	AlertID    string `json:"alertId"`
	ResolvedBy string `json:"resolvedBy"`
}

func (p ResolvePayload) Validate() error {
	if p.AlertID == "" || p.ResolvedBy == "" {
		return ErrMissingIdentity
	}
	return nil
}

type ChatJoinPayload struct {
	AlertID  string `json:"alertId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

func (p ChatJoinPayload) Validate() error {
	if p.AlertID == "" || p.UserID == "" {
		return ErrMissingIdentity
	}
	return nil
}

type ChatSendPayload struct {
	AlertID  string `json:"alertId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Message  string `json:"message"`
	// FirestoreID is set when the client already persisted the message to
	// the durable store before relaying. Reusing it keeps message identity
	// stable across the live push and the stored copy, which is what lets
	// receivers deduplicate.
	FirestoreID string `json:"firestoreId,omitempty"`
}

func (p ChatSendPayload) Validate() error {
	if p.AlertID == "" || p.UserID == "" || strings.TrimSpace(p.Message) == "" {
		return ErrInvalidMessage
	}
	return nil
}

type ChatLeavePayload struct {
	AlertID  string `json:"alertId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// ---------------------------------------------------------------
// Outbound payloads.
// ---------------------------------------------------------------

type RegisteredPayload struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId"`
}

// AlertReceipt goes back to the trigger origin only. The counts always
// partition the recipient list: Notified + Offline == TotalTargets.
type AlertReceipt struct {
	Success       bool   `json:"success"`
	AlertID       string `json:"alertId"`
	NotifiedCount int    `json:"notifiedCount"`
	OfflineCount  int    `json:"offlineCount"`
	TotalTargets  int    `json:"totalTargets"`
}

// AlertBroadcast carries the full alert record plus the delivery split to
// passive observers (admin dashboards) that were not named recipients. The
// embedded record flattens into the payload on the wire.
type AlertBroadcast struct {
	*models.Alert
	NotifiedCount int `json:"notifiedCount"`
	OfflineCount  int `json:"offlineCount"`
}

type AckEvent struct {
	AlertID        string    `json:"alertId"`
	AcknowledgedBy string    `json:"acknowledgedBy"`
	Timestamp      time.Time `json:"timestamp"`
}

type ResolvedEvent struct {
	AlertID    string    `json:"alertId"`
	ResolvedBy string    `json:"resolvedBy"`
	Timestamp  time.Time `json:"timestamp"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type ChatJoinedPayload struct {
	Success  bool   `json:"success"`
	AlertID  string `json:"alertId"`
	RoomName string `json:"roomName"`
}

type PresenceEvent struct {
	AlertID   string    `json:"alertId"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Timestamp time.Time `json:"timestamp"`
}

type MessageSentPayload struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
}

type PongPayload struct {
	Timestamp time.Time `json:"timestamp"`
}
