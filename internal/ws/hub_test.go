package ws

import (
	"sync"
	"testing"
	"time"

	"github.com/rishik-v/pulseguard/internal/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeConn records every event sent to it. With fail set it refuses all
// sends, standing in for a dead or saturated client.
type fakeConn struct {
	mu     sync.Mutex
	fail   bool
	events []Event
}

func (c *fakeConn) Send(evt Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return ErrConnClosed
	}
	c.events = append(c.events, evt)
	return nil
}

func (c *fakeConn) named(name string) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, evt := range c.events {
		if evt.Name == name {
			out = append(out, evt)
		}
	}
	return out
}

func (c *fakeConn) count(name string) int {
	return len(c.named(name))
}

// captureSink records what the hub hands to the durable layer.
type captureSink struct {
	mu        sync.Mutex
	alerts    []*models.Alert
	offline   [][]string
	resolved  []string
	messages  []*models.ChatMessage
	persisted []bool
}

func (s *captureSink) AlertCreated(alert *models.Alert, offline []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	s.offline = append(s.offline, offline)
}

func (s *captureSink) AlertResolved(alertID, resolvedBy string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolved = append(s.resolved, alertID)
}

func (s *captureSink) ChatMessageRelayed(msg *models.ChatMessage, callerPersisted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	s.persisted = append(s.persisted, callerPersisted)
}

func newTestHub(t *testing.T) (*Hub, *captureSink) {
	t.Helper()
	sink := &captureSink{}
	hub := NewHub(NewRegistry(), sink, zap.NewNop())
	hub.now = func() time.Time { return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC) }
	return hub, sink
}

// attachRegistered attaches a connection and registers it under the given
// identity, the way a real client's first two steps would.
func attachRegistered(t *testing.T, hub *Hub, userID string) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	hub.Attach(conn)
	require.NoError(t, hub.HandleRegister(conn, RegisterPayload{UserID: userID}))
	return conn
}

func TestHub_Register_EchoesIdentity(t *testing.T) {
	req := require.New(t)
	hub, _ := newTestHub(t)
	conn := &fakeConn{}
	hub.Attach(conn)

	req.NoError(hub.HandleRegister(conn, RegisterPayload{UserID: "alice", SecurityPlanID: "plan-1"}))

	acks := conn.named(EventRegistered)
	req.Len(acks, 1)
	req.Equal(RegisteredPayload{Success: true, UserID: "alice"}, acks[0].Data)
	req.Equal(1, hub.ConnectedUsers())
}

func TestHub_Register_MissingIdentity(t *testing.T) {
	req := require.New(t)
	hub, _ := newTestHub(t)
	conn := &fakeConn{}
	hub.Attach(conn)

	err := hub.HandleRegister(conn, RegisterPayload{UserID: "  "})
	req.ErrorIs(err, ErrMissingIdentity)
	req.Equal(1, conn.count(EventPanicError))
	req.Zero(conn.count(EventRegistered))
	req.Zero(hub.ConnectedUsers())
}

// The example everything else hangs off: alice and carol online, bob not.
func TestHub_Alert_PartitionsRecipients(t *testing.T) {
	req := require.New(t)
	hub, sink := newTestHub(t)

	origin := attachRegistered(t, hub, "trigger-user")
	alice := attachRegistered(t, hub, "alice")
	carol := attachRegistered(t, hub, "carol")
	observer := &fakeConn{}
	hub.Attach(observer)

	req.NoError(hub.HandleAlert(origin, AlertPayload{
		UserID:        "trigger-user",
		UserName:      "Trigger User",
		UserEmail:     "trigger@example.com",
		Location:      "Block C",
		NotifiedUsers: []string{"alice", "bob", "carol"},
	}))

	// Receipt to the origin: 2 delivered, 1 offline, 3 total.
	receipts := origin.named(EventAlertSent)
	req.Len(receipts, 1)
	receipt := receipts[0].Data.(AlertReceipt)
	req.True(receipt.Success)
	req.Equal(2, receipt.NotifiedCount)
	req.Equal(1, receipt.OfflineCount)
	req.Equal(3, receipt.TotalTargets)
	req.Equal(receipt.TotalTargets, receipt.NotifiedCount+receipt.OfflineCount)

	// Targeted push only to the reachable recipients.
	req.Equal(1, alice.count(EventNewAlert))
	req.Equal(1, carol.count(EventNewAlert))
	req.Zero(origin.count(EventNewAlert))

	// Observer broadcast reaches everyone but the origin — including a
	// connection that never registered.
	req.Equal(1, observer.count(EventAlertBroadcast))
	req.Equal(1, alice.count(EventAlertBroadcast))
	req.Zero(origin.count(EventAlertBroadcast))

	// The durable layer got the record and the unreachable recipient.
	req.Len(sink.alerts, 1)
	alert := sink.alerts[0]
	req.Equal("trigger-user", alert.UserID)
	req.Equal(models.AlertStatusActive, alert.Status)
	req.Equal([]string{"alice", "bob", "carol"}, alert.NotifiedUsers)
	req.Equal("unknown", alert.ActivatedFrom)
	req.Equal([]string{"bob"}, sink.offline[0])

	// The id is deterministic from engine time and trigger identity.
	req.Equal(alertID(hub.now(), "trigger-user"), alert.ID)
}

func TestHub_Alert_DuplicateRecipientsCountPerOccurrence(t *testing.T) {
	req := require.New(t)
	hub, _ := newTestHub(t)

	origin := attachRegistered(t, hub, "origin")
	alice := attachRegistered(t, hub, "alice")

	req.NoError(hub.HandleAlert(origin, AlertPayload{
		UserID:        "origin",
		NotifiedUsers: []string{"alice", "alice", "ghost"},
	}))

	// No dedup: alice was listed twice, alice is pushed twice.
	req.Equal(2, alice.count(EventNewAlert))

	receipt := origin.named(EventAlertSent)[0].Data.(AlertReceipt)
	req.Equal(2, receipt.NotifiedCount)
	req.Equal(1, receipt.OfflineCount)
	req.Equal(3, receipt.TotalTargets)
}

func TestHub_Alert_NoRecipients(t *testing.T) {
	req := require.New(t)
	hub, sink := newTestHub(t)

	origin := attachRegistered(t, hub, "origin")
	bystander := attachRegistered(t, hub, "bystander")

	err := hub.HandleAlert(origin, AlertPayload{UserID: "origin"})
	req.ErrorIs(err, ErrNoRecipients)

	// Error to the origin only; no record, no push, no broadcast.
	req.Equal(1, origin.count(EventPanicError))
	req.Zero(bystander.count(EventPanicError))
	req.Zero(bystander.count(EventNewAlert))
	req.Zero(bystander.count(EventAlertBroadcast))
	req.Empty(sink.alerts)
}

func TestHub_Alert_BrokenRecipientIsIsolatedAndCountedOffline(t *testing.T) {
	req := require.New(t)
	hub, sink := newTestHub(t)

	origin := attachRegistered(t, hub, "origin")
	alice := attachRegistered(t, hub, "alice")
	carol := attachRegistered(t, hub, "carol")

	broken := &fakeConn{fail: true}
	hub.Attach(broken)
	req.NoError(hub.registry.Register("bob", broken, ""))

	req.NoError(hub.HandleAlert(origin, AlertPayload{
		UserID:        "origin",
		NotifiedUsers: []string{"alice", "bob", "carol"},
	}))

	// bob's dead handle neither blocks nor fails alice and carol.
	req.Equal(1, alice.count(EventNewAlert))
	req.Equal(1, carol.count(EventNewAlert))

	// A registry hit whose send fails lands in the offline bucket, so the
	// counts stay honest and bob gets the out-of-band path.
	receipt := origin.named(EventAlertSent)[0].Data.(AlertReceipt)
	req.Equal(2, receipt.NotifiedCount)
	req.Equal(1, receipt.OfflineCount)
	req.Equal([]string{"bob"}, sink.offline[0])
}

func TestHub_Acknowledge_BroadcastsExceptAcknowledger(t *testing.T) {
	req := require.New(t)
	hub, _ := newTestHub(t)

	acker := attachRegistered(t, hub, "acker")
	other := attachRegistered(t, hub, "other")

	req.NoError(hub.HandleAcknowledge(acker, AckPayload{AlertID: "alert-1", UserID: "acker"}))

	acks := other.named(EventAcknowledgment)
	req.Len(acks, 1)
	evt := acks[0].Data.(AckEvent)
	req.Equal("alert-1", evt.AlertID)
	req.Equal("acker", evt.AcknowledgedBy)
	req.Zero(acker.count(EventAcknowledgment))

	// Acknowledgments are additive: a repeat from the same user broadcasts
	// again, nothing dedups it.
	req.NoError(hub.HandleAcknowledge(acker, AckPayload{AlertID: "alert-1", UserID: "acker"}))
	req.Equal(2, other.count(EventAcknowledgment))
}

func TestHub_Resolve_GlobalAndIdempotentByCall(t *testing.T) {
	req := require.New(t)
	hub, sink := newTestHub(t)

	resolver := attachRegistered(t, hub, "resolver")
	other := attachRegistered(t, hub, "other")

	// Twice on the same id — neither call errors, both broadcast, and the
	// resolver hears its own resolution too (resolution is global news).
	req.NoError(hub.HandleResolve(resolver, ResolvePayload{AlertID: "alert-1", ResolvedBy: "resolver"}))
	req.NoError(hub.HandleResolve(resolver, ResolvePayload{AlertID: "alert-1", ResolvedBy: "resolver"}))

	req.Equal(2, resolver.count(EventResolved))
	req.Equal(2, other.count(EventResolved))
	req.Equal([]string{"alert-1", "alert-1"}, sink.resolved)
}

func TestHub_ChatJoin_ConfirmsJoinerSeparately(t *testing.T) {
	req := require.New(t)
	hub, _ := newTestHub(t)

	alice := attachRegistered(t, hub, "alice")
	bob := attachRegistered(t, hub, "bob")

	req.NoError(hub.HandleChatJoin(alice, ChatJoinPayload{AlertID: "alert-1", UserID: "alice", UserName: "Alice"}))
	req.NoError(hub.HandleChatJoin(bob, ChatJoinPayload{AlertID: "alert-1", UserID: "bob", UserName: "Bob"}))

	// "you joined" went to bob alone; "someone joined" went to alice alone.
	joined := bob.named(EventChatJoined)
	req.Len(joined, 1)
	req.Equal(ChatJoinedPayload{Success: true, AlertID: "alert-1", RoomName: "emergency_alert-1"}, joined[0].Data)
	req.Zero(bob.count(EventUserJoined))

	arrivals := alice.named(EventUserJoined)
	req.Len(arrivals, 1)
	req.Equal("bob", arrivals[0].Data.(PresenceEvent).UserID)
}

func TestHub_ChatSend_SenderReceivesOwnBroadcast(t *testing.T) {
	req := require.New(t)
	hub, sink := newTestHub(t)

	alice := attachRegistered(t, hub, "alice")
	bob := attachRegistered(t, hub, "bob")
	outsider := attachRegistered(t, hub, "outsider")

	req.NoError(hub.HandleChatJoin(alice, ChatJoinPayload{AlertID: "alert-1", UserID: "alice", UserName: "Alice"}))
	req.NoError(hub.HandleChatJoin(bob, ChatJoinPayload{AlertID: "alert-1", UserID: "bob", UserName: "Bob"}))

	req.NoError(hub.HandleChatSend(alice, ChatSendPayload{
		AlertID:  "alert-1",
		UserID:   "alice",
		UserName: "Alice",
		Message:  "is everyone safe?",
	}))

	// The room broadcast includes the sender — no local echo on clients.
	req.Equal(1, alice.count(EventNewMessage))
	req.Equal(1, bob.count(EventNewMessage))
	req.Zero(outsider.count(EventNewMessage))

	// Separate delivery ack with the resolved id, for optimistic UIs.
	sent := alice.named(EventMessageSent)
	req.Len(sent, 1)
	ack := sent[0].Data.(MessageSentPayload)
	req.True(ack.Success)

	msg := alice.named(EventNewMessage)[0].Data.(*models.ChatMessage)
	req.Equal(ack.MessageID, msg.ID)
	req.Equal("is everyone safe?", msg.Body)

	// Relay minted the id, so the durable layer is asked to persist.
	req.Len(sink.messages, 1)
	req.False(sink.persisted[0])
}

func TestHub_ChatSend_ReusesDurableID(t *testing.T) {
	req := require.New(t)
	hub, sink := newTestHub(t)

	alice := attachRegistered(t, hub, "alice")
	req.NoError(hub.HandleChatJoin(alice, ChatJoinPayload{AlertID: "alert-1", UserID: "alice"}))

	req.NoError(hub.HandleChatSend(alice, ChatSendPayload{
		AlertID:     "alert-1",
		UserID:      "alice",
		Message:     "already stored",
		FirestoreID: "doc-123",
	}))

	// Stable identity across live push and stored copy.
	msg := alice.named(EventNewMessage)[0].Data.(*models.ChatMessage)
	req.Equal("doc-123", msg.ID)
	req.Equal("doc-123", alice.named(EventMessageSent)[0].Data.(MessageSentPayload).MessageID)

	// The caller persisted it; writing again is not the notifier's job.
	req.True(sink.persisted[0])
}

func TestHub_ChatSend_InvalidMessage(t *testing.T) {
	req := require.New(t)
	hub, sink := newTestHub(t)

	alice := attachRegistered(t, hub, "alice")
	bob := attachRegistered(t, hub, "bob")
	req.NoError(hub.HandleChatJoin(alice, ChatJoinPayload{AlertID: "alert-1", UserID: "alice"}))
	req.NoError(hub.HandleChatJoin(bob, ChatJoinPayload{AlertID: "alert-1", UserID: "bob"}))

	err := hub.HandleChatSend(alice, ChatSendPayload{AlertID: "alert-1", UserID: "alice", Message: "   "})
	req.ErrorIs(err, ErrInvalidMessage)

	// Sender-only error, nothing broadcast, nothing persisted.
	req.Equal(1, alice.count(EventChatError))
	req.Zero(bob.count(EventChatError))
	req.Zero(bob.count(EventNewMessage))
	req.Empty(sink.messages)
}

func TestHub_ChatLeave_NotifiesRemainingMembers(t *testing.T) {
	req := require.New(t)
	hub, _ := newTestHub(t)

	alice := attachRegistered(t, hub, "alice")
	bob := attachRegistered(t, hub, "bob")
	req.NoError(hub.HandleChatJoin(alice, ChatJoinPayload{AlertID: "alert-1", UserID: "alice", UserName: "Alice"}))
	req.NoError(hub.HandleChatJoin(bob, ChatJoinPayload{AlertID: "alert-1", UserID: "bob", UserName: "Bob"}))

	req.NoError(hub.HandleChatLeave(alice, ChatLeavePayload{AlertID: "alert-1", UserID: "alice", UserName: "Alice"}))

	left := bob.named(EventUserLeft)
	req.Len(left, 1)
	req.Equal("alice", left[0].Data.(PresenceEvent).UserID)

	// The departed connection no longer receives room traffic.
	req.NoError(hub.HandleChatSend(bob, ChatSendPayload{AlertID: "alert-1", UserID: "bob", Message: "hello?"}))
	req.Zero(alice.count(EventNewMessage))
}

func TestHub_Detach_CleansRegistrationAndRooms(t *testing.T) {
	req := require.New(t)
	hub, _ := newTestHub(t)

	alice := attachRegistered(t, hub, "alice")
	bob := attachRegistered(t, hub, "bob")
	req.NoError(hub.HandleChatJoin(alice, ChatJoinPayload{AlertID: "alert-1", UserID: "alice", UserName: "Alice"}))
	req.NoError(hub.HandleChatJoin(bob, ChatJoinPayload{AlertID: "alert-1", UserID: "bob", UserName: "Bob"}))

	userID, ok := hub.Detach(alice)
	req.True(ok)
	req.Equal("alice", userID)

	// Registration gone, room membership evicted, departure announced.
	_, ok = hub.registry.Lookup("alice")
	req.False(ok)
	req.Equal(1, bob.count(EventUserLeft))
	req.Len(hub.rooms.Members("alert-1"), 1)

	// Detaching a never-registered connection reports no identity.
	anon := &fakeConn{}
	hub.Attach(anon)
	_, ok = hub.Detach(anon)
	req.False(ok)
}

func TestHub_Ping(t *testing.T) {
	req := require.New(t)
	hub, _ := newTestHub(t)
	conn := &fakeConn{}
	hub.Attach(conn)

	hub.HandlePing(conn)

	pongs := conn.named(EventPong)
	req.Len(pongs, 1)
	req.Equal(hub.now(), pongs[0].Data.(PongPayload).Timestamp)
}
