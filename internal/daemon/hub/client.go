package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is one live realtime connection, owned by the Hub.
type Client struct {
	id   string
	conn *websocket.Conn

	// mu guards send-channel state so a broadcast racing a disconnect
	// can never write to a closed channel.
	mu     sync.Mutex
	send   chan []byte
	closed bool

	// Guarded by the hub mutex.
	sessionID      string
	clientType     string
	joinedAt       time.Time
	lastActivityAt time.Time
}

func newClient(id string, conn *websocket.Conn) *Client {
	c := &Client{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, 64),
		lastActivityAt: time.Now(),
	}
	if conn != nil {
		go c.writePump()
	}
	return c
}

// ID returns the connection id assigned at registration.
func (c *Client) ID() string {
	return c.id
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// trySend queues a frame without blocking. It reports false only when
// the client is live and its buffer is full; frames for an already
// closed client are dropped.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
