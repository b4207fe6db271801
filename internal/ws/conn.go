package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Send-side failure modes. Both count as "this recipient is unreachable":
// the fan-out engine folds them into the offline bucket instead of
// pretending the frame arrived.
var (
	ErrConnClosed   = errors.New("connection closed")
	ErrSlowConsumer = errors.New("send buffer full")
)

// Conn is one live client connection as the hub sees it. The hub never
// touches the websocket directly — it hands an Event to Send and moves on.
// Send must not block: a slow or dead client is that client's problem,
// never the fan-out loop's.
type Conn interface {
	Send(evt Event) error
}

const (
	// Outgoing buffer per client. Deep enough to absorb a burst (one alert
	// can emit push + broadcast + chat traffic back to back), small enough
	// that a stuck client fails fast instead of hoarding memory.
	sendBufferSize = 64

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// wsConn adapts a gorilla websocket connection to Conn. A buffered channel
// decouples event producers from the single writer goroutine — gorilla
// allows at most one concurrent writer, and the write pump is it.
type wsConn struct {
	ws   *websocket.Conn
	send chan Event

	mu     sync.Mutex
	closed bool
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{
		ws:   ws,
		send: make(chan Event, sendBufferSize),
	}
}

// Send queues the event for the write pump. It fails fast when the buffer
// is full or the connection is already closed — the caller treats either
// as an unreachable peer.
//
// The mutex covers the channel send so close() cannot close the channel
// between the closed check and the enqueue. The send itself never blocks,
// so the critical section stays tiny.
func (c *wsConn) Send(evt Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}

	select {
	case c.send <- evt:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// close marks the connection dead and wakes the write pump. Safe to call
// more than once — the read loop and the write pump can both hit a failure
// for the same connection.
func (c *wsConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump drains the send channel onto the wire and keeps the connection
// alive with protocol-level pings. One goroutine per connection; it exits
// when close() closes the channel or a write fails.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case evt, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
