// Package hub implements the signaling hub: the per-connection dispatch loop
// that decodes wire frames, verifies signatures at the edge, forwards
// point-to-point WebRTC signaling, and delegates chat frames to the
// broadcast pipeline.
package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roomfabric/hub/internal/v1/metrics"
)

// connState is the per-connection lifecycle: OPENING -> JOINED -> CLOSING -> CLOSED.
type connState int32

const (
	stateOpening connState = iota
	stateJoined
	stateClosing
	stateClosed
)

// wsConn is the subset of *websocket.Conn the Client needs, mirrored here so
// tests can substitute a fake connection.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}

// Client represents one live connection. It implements registry.Connection
// so the registry can forward frames to it without knowing about WebSocket
// or the hub's dispatch logic.
type Client struct {
	conn wsConn
	send chan []byte
	hub  *Hub

	mu        sync.RWMutex
	state     connState
	room      string
	publicKey string
	name      string
}

func newClient(conn wsConn, h *Hub) *Client {
	return &Client{
		conn:  conn,
		send:  make(chan []byte, 256),
		hub:   h,
		state: stateOpening,
	}
}

// Send queues frame for delivery without blocking. Returns false if the
// client's outbound buffer is full; the caller is expected to drop the
// frame rather than retry.
func (c *Client) Send(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) getState() connState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(s connState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) identity() (room, publicKey, name string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room, c.publicKey, c.name
}

func (c *Client) setIdentity(room, publicKey, name string) {
	c.mu.Lock()
	c.room = room
	c.publicKey = publicKey
	c.name = name
	c.mu.Unlock()
}

// readPump decodes and dispatches inbound frames in arrival order until the
// connection errors or closes, then runs the hub's disconnect cleanup.
func (c *Client) readPump() {
	defer func() {
		c.setState(stateClosing)
		c.hub.handleDisconnect(c)
		c.conn.Close()
		c.setState(stateClosed)
		metrics.ActiveConnections.Dec()
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.hub.dispatch(c, data)
	}
}

// writePump drains the outbound buffer to the socket until it is closed.
func (c *Client) writePump() {
	defer c.conn.Close()
	const writeWait = 10 * time.Second

	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
