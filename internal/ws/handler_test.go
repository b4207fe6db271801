package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// wireEvent mirrors the outbound frame as a client decodes it.
type wireEvent struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

func dialTestServer(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHandler(hub, nil, zap.NewNop())
	r.GET("/ws", handler.Serve)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt wireEvent
	require.NoError(t, conn.ReadJSON(&evt))
	return evt
}

func TestHandler_RegisterOverTheWire(t *testing.T) {
	req := require.New(t)
	hub, _ := newTestHub(t)
	conn := dialTestServer(t, hub)

	req.NoError(conn.WriteJSON(map[string]any{
		"event": EventRegister,
		"data":  map[string]any{"userId": "alice"},
	}))

	evt := readEvent(t, conn)
	req.Equal(EventRegistered, evt.Event)
	req.Equal(true, evt.Data["success"])
	req.Equal("alice", evt.Data["userId"])
}

func TestHandler_PingPong(t *testing.T) {
	req := require.New(t)
	hub, _ := newTestHub(t)
	conn := dialTestServer(t, hub)

	req.NoError(conn.WriteJSON(map[string]any{"event": EventPing}))

	evt := readEvent(t, conn)
	req.Equal(EventPong, evt.Event)
	req.NotEmpty(evt.Data["timestamp"])
}

func TestHandler_MalformedFrame(t *testing.T) {
	req := require.New(t)
	hub, _ := newTestHub(t)
	conn := dialTestServer(t, hub)

	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	evt := readEvent(t, conn)
	req.Equal(EventPanicError, evt.Event)

	// The connection survives a bad frame; the next event still works.
	req.NoError(conn.WriteJSON(map[string]any{"event": EventPing}))
	req.Equal(EventPong, readEvent(t, conn).Event)
}

func TestHandler_DisconnectClearsRegistration(t *testing.T) {
	req := require.New(t)
	hub, _ := newTestHub(t)
	conn := dialTestServer(t, hub)

	req.NoError(conn.WriteJSON(map[string]any{
		"event": EventRegister,
		"data":  map[string]any{"userId": "alice"},
	}))
	readEvent(t, conn) // registered ack

	conn.Close()

	// The server's read loop notices the close and runs cleanup; give it a
	// moment rather than a fixed sleep.
	req.Eventually(func() bool {
		return hub.ConnectedUsers() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_AlertOverTheWire(t *testing.T) {
	req := require.New(t)
	hub, sink := newTestHub(t)
	trigger := dialTestServer(t, hub)
	recipient := dialTestServer(t, hub)

	req.NoError(trigger.WriteJSON(map[string]any{
		"event": EventRegister, "data": map[string]any{"userId": "origin"},
	}))
	readEvent(t, trigger)
	req.NoError(recipient.WriteJSON(map[string]any{
		"event": EventRegister, "data": map[string]any{"userId": "alice"},
	}))
	readEvent(t, recipient)

	req.NoError(trigger.WriteJSON(map[string]any{
		"event": EventPanicAlert,
		"data": map[string]any{
			"userId":        "origin",
			"userName":      "Origin",
			"userEmail":     "origin@example.com",
			"location":      "Gate 2",
			"notifiedUsers": []string{"alice", "bob"},
		},
	}))

	evt := readEvent(t, trigger)
	req.Equal(EventAlertSent, evt.Event)
	req.Equal(float64(1), evt.Data["notifiedCount"])
	req.Equal(float64(1), evt.Data["offlineCount"])
	req.Equal(float64(2), evt.Data["totalTargets"])

	push := readEvent(t, recipient)
	req.Equal(EventNewAlert, push.Event)
	req.Equal("origin", push.Data["userId"])
	req.Equal("active", push.Data["status"])

	sink.mu.Lock()
	defer sink.mu.Unlock()
	req.Len(sink.alerts, 1)
	req.Equal([]string{"bob"}, sink.offline[0])
}

// Hard check that the http upgrade path rejects plain GETs cleanly.
func TestHandler_NonWebsocketRequest(t *testing.T) {
	req := require.New(t)
	gin.SetMode(gin.TestMode)
	hub, _ := newTestHub(t)
	r := gin.New()
	r.GET("/ws", NewHandler(hub, nil, zap.NewNop()).Serve)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	req.Equal(http.StatusBadRequest, w.Code)
}
