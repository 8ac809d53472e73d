package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	PongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than PongWait.
	PingPeriod = (PongWait * 9) / 10

	// Maximum message size allowed from peer.
	MaxMessageSize = 512 * 1024
)

var ErrClosed = errors.New("endpoint closed")

// Client is a WebSocket endpoint. It reports closed after the first
// failed write or an explicit Close.
type Client struct {
	id   string
	Conn *websocket.Conn

	mu     sync.Mutex
	closed bool
	hook   func([]byte) error
}

func NewClient(conn *websocket.Conn) *Client {
	return &Client{id: uuid.NewString(), Conn: conn}
}

func (c *Client) ID() string { return c.id }

// SetSendHook replaces the default WebSocket sender (used in tests).
func (c *Client) SetSendHook(fn func([]byte) error) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

func (c *Client) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *Client) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.hook != nil {
		return c.hook(payload)
	}
	if c.Conn == nil {
		return ErrClosed
	}
	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.closed = true
		return err
	}
	return nil
}

// Ping writes a control ping; a failure marks the client closed.
func (c *Client) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.Conn == nil {
		return ErrClosed
	}
	if err := c.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
		c.closed = true
		return err
	}
	return nil
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.Conn != nil {
		_ = c.Conn.Close()
	}
}
