package ws

import (
	"fmt"
	"sync"
	"time"

	"github.com/rishik-v/pulseguard/internal/models"
	"go.uber.org/zap"
)

// Sink receives durable-store work the hub itself must not do: the hub's
// handlers stay non-blocking, so every Sink call has to return immediately
// and do its I/O elsewhere (the notifier runs each on a goroutine with its
// own deadline). Failures on the durable side never travel back into the
// live path.
type Sink interface {
	// AlertCreated fires once per accepted trigger, with the canonical
	// record and the recipients live delivery could not reach.
	AlertCreated(alert *models.Alert, offline []string)

	// AlertResolved fires on every resolve call, known alert or not.
	AlertResolved(alertID, resolvedBy string, at time.Time)

	// ChatMessageRelayed fires after a room broadcast. callerPersisted is
	// true when the sender supplied a durable id, meaning the record
	// already exists and writing it again is someone else's bug to avoid.
	ChatMessageRelayed(msg *models.ChatMessage, callerPersisted bool)
}

// NopSink is the Sink used when no durable layer is wired (tests, or a
// purely ephemeral deployment).
type NopSink struct{}

func (NopSink) AlertCreated(*models.Alert, []string)         {}
func (NopSink) AlertResolved(string, string, time.Time)      {}
func (NopSink) ChatMessageRelayed(*models.ChatMessage, bool) {}

// Hub coordinates the realtime layer: it owns the set of attached
// connections, consults the injected Registry for identity → connection
// resolution, and drives alert fan-out, acknowledgments, resolution, and
// the per-alert emergency chat.
//
// The hub holds no alert state. An alert record is synthesized, pushed, and
// handed to the Sink; acknowledgments and resolutions are pure broadcast
// events. All durable state lives behind the Sink.
type Hub struct {
	registry *Registry
	rooms    *RoomTable
	sink     Sink
	logger   *zap.Logger

	mu    sync.RWMutex
	conns map[Conn]struct{}

	// now is swappable so tests control timestamps and generated ids.
	now func() time.Time
}

func NewHub(registry *Registry, sink Sink, logger *zap.Logger) *Hub {
	if sink == nil {
		sink = NopSink{}
	}
	return &Hub{
		registry: registry,
		rooms:    NewRoomTable(),
		sink:     sink,
		logger:   logger,
		conns:    make(map[Conn]struct{}),
		now:      time.Now,
	}
}

// Attach adds a freshly accepted connection to the broadcast audience.
// Attached ≠ registered: a connection observes broadcasts from the moment
// it exists, but is only reachable by identity after its register event.
func (h *Hub) Attach(conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = struct{}{}
}

// Detach runs the full disconnect path: drop from the broadcast audience,
// clear the identity registration (reverse lookup — disconnect only knows
// the handle), and evict the connection from every chat room it joined,
// announcing each departure to the remaining members.
//
// Returns the identity that was registered on this connection, if any, so
// the transport layer can clear presence.
func (h *Hub) Detach(conn Conn) (string, bool) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()

	for room, member := range h.rooms.EvictConn(conn) {
		h.broadcastRoom(room, Event{
			Name: EventUserLeft,
			Data: PresenceEvent{
				AlertID:   room,
				UserID:    member.userID,
				UserName:  member.userName,
				Timestamp: h.now(),
			},
		}, conn)
	}

	userID, ok := h.registry.RemoveByConn(conn)
	if ok {
		h.logger.Info("user disconnected", zap.String("user_id", userID))
	}
	return userID, ok
}

// ConnectedUsers is the registered-identity count for the health surface.
func (h *Hub) ConnectedUsers() int {
	return h.registry.Count()
}

// ---------------------------------------------------------------
// Registration
// ---------------------------------------------------------------

// HandleRegister binds an identity to its connection and echoes the
// registration back so the client can confirm it took.
func (h *Hub) HandleRegister(conn Conn, p RegisterPayload) error {
	if err := p.Validate(); err != nil {
		h.sendError(conn, EventPanicError, "userId is required to register")
		return err
	}

	// Never fails past validation. A repeat register simply supersedes the
	// previous handle for this identity.
	if err := h.registry.Register(p.UserID, conn, p.SecurityPlanID); err != nil {
		h.sendError(conn, EventPanicError, "userId is required to register")
		return err
	}

	h.logger.Info("user registered",
		zap.String("user_id", p.UserID),
		zap.String("security_plan", p.SecurityPlanID),
	)
	h.trySend(conn, Event{Name: EventRegistered, Data: RegisteredPayload{Success: true, UserID: p.UserID}})
	return nil
}

// ---------------------------------------------------------------
// Alert fan-out
// ---------------------------------------------------------------

// HandleAlert turns one trigger into the canonical alert record, a push to
// every reachable recipient, a receipt to the origin, and an observer
// broadcast.
//
// Recipient iteration is input order, no dedup: a duplicated identity in
// notifiedUsers is two delivery attempts and two counted targets. That is
// the caller's list, faithfully executed.
func (h *Hub) HandleAlert(conn Conn, p AlertPayload) error {
	if err := p.Validate(); err != nil {
		h.sendError(conn, EventPanicError, err.Error())
		return err
	}

	// The timestamp is receipt time here, not whatever the client claims —
	// a skewed or hostile client clock must not reorder the record.
	now := h.now()
	alert := &models.Alert{
		ID:            alertID(now, p.UserID),
		UserID:        p.UserID,
		UserName:      p.UserName,
		UserEmail:     p.UserEmail,
		Location:      p.Location,
		Description:   p.Description,
		Status:        models.AlertStatusActive,
		NotifiedUsers: p.NotifiedUsers,
		ExtremeMode:   p.ExtremeMode,
		HasVideo:      p.HasVideo,
		ActivatedFrom: activatedFrom(p.ActivatedFrom),
		CreatedAt:     now,
	}

	push := Event{Name: EventNewAlert, Data: alert}
	delivered := 0
	offline := make([]string, 0)

	for _, recipient := range p.NotifiedUsers {
		target, ok := h.registry.Lookup(recipient)
		if !ok {
			offline = append(offline, recipient)
			continue
		}
		// A registry hit whose send fails is counted offline too: the
		// counts describe what the transport accepted, and the recipient
		// still needs the out-of-band path. One broken handle never stops
		// the rest of the list.
		if err := target.Send(push); err != nil {
			h.logger.Warn("alert push failed",
				zap.String("alert_id", alert.ID),
				zap.String("recipient", recipient),
				zap.Error(err),
			)
			offline = append(offline, recipient)
			continue
		}
		delivered++
	}

	h.logger.Info("alert fanned out",
		zap.String("alert_id", alert.ID),
		zap.String("triggered_by", p.UserID),
		zap.Int("delivered", delivered),
		zap.Int("offline", len(offline)),
		zap.Bool("extreme_mode", alert.ExtremeMode),
	)

	h.trySend(conn, Event{Name: EventAlertSent, Data: AlertReceipt{
		Success:       true,
		AlertID:       alert.ID,
		NotifiedCount: delivered,
		OfflineCount:  len(offline),
		TotalTargets:  len(p.NotifiedUsers),
	}})

	// Observer broadcast: everything connected except the origin, named
	// recipient or not. Dashboards listen here without being on anyone's
	// notification list.
	h.broadcast(Event{Name: EventAlertBroadcast, Data: AlertBroadcast{
		Alert:         alert,
		NotifiedCount: delivered,
		OfflineCount:  len(offline),
	}}, conn)

	h.sink.AlertCreated(alert, offline)
	return nil
}

// ---------------------------------------------------------------
// Acknowledgment & resolution
// ---------------------------------------------------------------

// HandleAcknowledge broadcasts an acknowledgment to everyone but the
// acknowledger. Acknowledgments are purely additive and informational —
// no dedup, no cap, no status change on the alert.
func (h *Hub) HandleAcknowledge(conn Conn, p AckPayload) error {
	if err := p.Validate(); err != nil {
		h.sendError(conn, EventPanicError, "alertId and userId are required")
		return err
	}

	h.logger.Info("alert acknowledged",
		zap.String("alert_id", p.AlertID),
		zap.String("by", p.UserID),
	)
	h.broadcast(Event{Name: EventAcknowledgment, Data: AckEvent{
		AlertID:        p.AlertID,
		AcknowledgedBy: p.UserID,
		Timestamp:      h.now(),
	}}, conn)
	return nil
}

// HandleResolve broadcasts a terminal resolution to every connection,
// the resolver included — resolution is global news, wider than the
// alert's own audience.
//
// Deliberately tolerant: resolving an unknown or already-resolved alert id
// still broadcasts. Whether the caller was allowed to resolve is the
// application layer's check, not this one's.
func (h *Hub) HandleResolve(conn Conn, p ResolvePayload) error {
	if err := p.Validate(); err != nil {
		h.sendError(conn, EventPanicError, "alertId and resolvedBy are required")
		return err
	}

	now := h.now()
	h.logger.Info("alert resolved",
		zap.String("alert_id", p.AlertID),
		zap.String("by", p.ResolvedBy),
	)
	h.broadcast(Event{Name: EventResolved, Data: ResolvedEvent{
		AlertID:    p.AlertID,
		ResolvedBy: p.ResolvedBy,
		Timestamp:  now,
	}}, nil)

	h.sink.AlertResolved(p.AlertID, p.ResolvedBy, now)
	return nil
}

// ---------------------------------------------------------------
// Emergency chat
// ---------------------------------------------------------------

// HandleChatJoin puts the connection in the alert's room, tells the rest of
// the room someone arrived, and confirms to the joiner separately — clients
// render "you joined" and "someone joined" differently.
func (h *Hub) HandleChatJoin(conn Conn, p ChatJoinPayload) error {
	if err := p.Validate(); err != nil {
		h.sendError(conn, EventChatError, "alertId and userId are required to join")
		return err
	}

	room := p.AlertID
	h.rooms.Join(room, conn, p.UserID, p.UserName)

	h.broadcastRoom(room, Event{Name: EventUserJoined, Data: PresenceEvent{
		AlertID:   room,
		UserID:    p.UserID,
		UserName:  p.UserName,
		Timestamp: h.now(),
	}}, conn)

	h.trySend(conn, Event{Name: EventChatJoined, Data: ChatJoinedPayload{
		Success:  true,
		AlertID:  room,
		RoomName: roomName(room),
	}})
	return nil
}

// HandleChatSend relays a message to the whole room — sender included.
// There is no local echo on the client; the sender's own copy arrives
// through the same broadcast as everyone else's, under the same id.
func (h *Hub) HandleChatSend(conn Conn, p ChatSendPayload) error {
	if err := p.Validate(); err != nil {
		h.sendError(conn, EventChatError, "alertId, userId and a non-empty message are required")
		return err
	}

	now := h.now()
	msg := &models.ChatMessage{
		AlertID:   p.AlertID,
		SenderID:  p.UserID,
		UserName:  p.UserName,
		Body:      p.Message,
		CreatedAt: now,
	}

	// Identity rule: a caller-supplied durable id wins, because the record
	// already exists under that id and both copies must match. Otherwise
	// we mint one.
	callerPersisted := p.FirestoreID != ""
	if callerPersisted {
		msg.ID = p.FirestoreID
	} else {
		msg.ID = messageID(now, p.UserID)
	}

	h.broadcastRoom(p.AlertID, Event{Name: EventNewMessage, Data: msg}, nil)

	h.trySend(conn, Event{Name: EventMessageSent, Data: MessageSentPayload{
		Success:   true,
		MessageID: msg.ID,
	}})

	h.sink.ChatMessageRelayed(msg, callerPersisted)
	return nil
}

// HandleChatLeave removes the connection from the room and tells the
// remaining members. Leaving a room you were never in is a quiet no-op.
func (h *Hub) HandleChatLeave(conn Conn, p ChatLeavePayload) error {
	member, ok := h.rooms.Leave(p.AlertID, conn)
	if !ok {
		return nil
	}

	userName := p.UserName
	if userName == "" {
		userName = member.userName
	}
	h.broadcastRoom(p.AlertID, Event{Name: EventUserLeft, Data: PresenceEvent{
		AlertID:   p.AlertID,
		UserID:    member.userID,
		UserName:  userName,
		Timestamp: h.now(),
	}}, conn)
	return nil
}

// ---------------------------------------------------------------
// Liveness
// ---------------------------------------------------------------

// HandlePing answers with a server-stamped pong. Diagnostic only.
func (h *Hub) HandlePing(conn Conn) {
	h.trySend(conn, Event{Name: EventPong, Data: PongPayload{Timestamp: h.now()}})
}

// ---------------------------------------------------------------
// Delivery plumbing
// ---------------------------------------------------------------

// broadcast sends to every attached connection except the excluded one.
// Best-effort: a failed send is logged and skipped, never retried and never
// allowed to interrupt the loop.
func (h *Hub) broadcast(evt Event, except Conn) {
	h.mu.RLock()
	targets := make([]Conn, 0, len(h.conns))
	for conn := range h.conns {
		if conn == except {
			continue
		}
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	for _, conn := range targets {
		h.trySend(conn, evt)
	}
}

// broadcastRoom sends to every member of a room except the excluded one
// (pass nil to include everyone — chat messages do).
func (h *Hub) broadcastRoom(room string, evt Event, except Conn) {
	for _, conn := range h.rooms.Members(room) {
		if conn == except {
			continue
		}
		h.trySend(conn, evt)
	}
}

func (h *Hub) trySend(conn Conn, evt Event) {
	if err := conn.Send(evt); err != nil {
		h.logger.Debug("send skipped", zap.String("event", evt.Name), zap.Error(err))
	}
}

func (h *Hub) sendError(conn Conn, name, message string) {
	h.trySend(conn, Event{Name: name, Data: ErrorPayload{Message: message}})
}

// alertID is deterministic on purpose: timestamp plus trigger identity.
// Uniqueness is what matters (the id keys the live push, the chat room and
// the durable row); unguessability does not.
func alertID(at time.Time, userID string) string {
	return fmt.Sprintf("alert_%d_%s", at.UnixMilli(), userID)
}

func messageID(at time.Time, senderID string) string {
	return fmt.Sprintf("msg_%d_%s", at.UnixMilli(), senderID)
}

func roomName(alertID string) string {
	return "emergency_" + alertID
}

func activatedFrom(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
