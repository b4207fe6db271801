package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Presence is the optional cross-instance online tracker (Redis-backed in
// production). Calls must be non-blocking; the tracker does its own I/O in
// the background.
type Presence interface {
	MarkOnline(userID string)
	MarkOffline(userID string)
}

type nopPresence struct{}

func (nopPresence) MarkOnline(string)  {}
func (nopPresence) MarkOffline(string) {}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The portal frontend is served from a different origin than the API.
	// Identity is asserted by the register event, same as the rest of the
	// protocol, so the origin check adds nothing here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler owns the websocket endpoint: upgrade, per-connection read loop,
// event dispatch, disconnect cleanup.
type Handler struct {
	hub      *Hub
	presence Presence
	logger   *zap.Logger
}

func NewHandler(hub *Hub, presence Presence, logger *zap.Logger) *Handler {
	if presence == nil {
		presence = nopPresence{}
	}
	return &Handler{hub: hub, presence: presence, logger: logger}
}

// Serve handles GET /ws. Each accepted connection gets a write pump
// goroutine and runs its read loop on the request goroutine — transport
// FIFO per connection falls straight out of that single reader.
func (h *Handler) Serve(c *gin.Context) {
	socket, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := newWSConn(socket)
	go conn.writePump()
	h.hub.Attach(conn)
	defer h.teardown(conn)

	socket.SetReadLimit(64 << 10)
	socket.SetReadDeadline(time.Now().Add(pongWait))
	socket.SetPongHandler(func(string) error {
		socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			h.hub.sendError(conn, EventPanicError, "malformed event frame")
			continue
		}
		h.dispatch(conn, env)
	}
}

func (h *Handler) teardown(conn *wsConn) {
	if userID, ok := h.hub.Detach(conn); ok {
		h.presence.MarkOffline(userID)
	}
	conn.close()
}

// dispatch routes one inbound event. The recover fence is the process-level
// isolation guarantee: a panic inside any single handler is confined to the
// event that caused it — the connection lives on, and so does everyone
// else's.
func (h *Handler) dispatch(conn *wsConn, env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("event handler panicked",
				zap.String("event", env.Event),
				zap.Any("panic", r),
			)
		}
	}()

	switch env.Event {
	case EventRegister:
		var p RegisterPayload
		if !h.decode(conn, env, &p, EventPanicError) {
			return
		}
		if err := h.hub.HandleRegister(conn, p); err == nil {
			h.presence.MarkOnline(p.UserID)
		}

	case EventPanicAlert:
		var p AlertPayload
		if !h.decode(conn, env, &p, EventPanicError) {
			return
		}
		h.hub.HandleAlert(conn, p)

	case EventAcknowledge:
		var p AckPayload
		if !h.decode(conn, env, &p, EventPanicError) {
			return
		}
		h.hub.HandleAcknowledge(conn, p)

	case EventResolve:
		var p ResolvePayload
		if !h.decode(conn, env, &p, EventPanicError) {
			return
		}
		h.hub.HandleResolve(conn, p)

	case EventChatJoin:
		var p ChatJoinPayload
		if !h.decode(conn, env, &p, EventChatError) {
			return
		}
		h.hub.HandleChatJoin(conn, p)

	case EventChatSend:
		var p ChatSendPayload
		if !h.decode(conn, env, &p, EventChatError) {
			return
		}
		h.hub.HandleChatSend(conn, p)

	case EventChatLeave:
		var p ChatLeavePayload
		if !h.decode(conn, env, &p, EventChatError) {
			return
		}
		h.hub.HandleChatLeave(conn, p)

	case EventPing:
		h.hub.HandlePing(conn)

	default:
		// Unknown events are ignored, not errors — older clients may emit
		// names this build no longer handles.
		h.logger.Debug("unhandled event", zap.String("event", env.Event))
	}
}

// decode unmarshals the envelope payload, reporting a malformed payload to
// the sender on the given error channel (panic:error vs chat:error).
func (h *Handler) decode(conn *wsConn, env Envelope, out any, errEvent string) bool {
	if len(env.Data) == 0 {
		// Events like ping legitimately carry no data; for the rest the
		// payload validators decide what is missing.
		return true
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		h.hub.sendError(conn, errEvent, "malformed payload for "+env.Event)
		return false
	}
	return true
}
