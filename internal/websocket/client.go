package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	readWait     = 60 * time.Second
)

// Client is one live connection.
type Client struct {
	ID     string
	UserID string // authenticated caller
	Owner  string // owner whose events are pushed
	Conn   *websocket.Conn
	Send   chan []byte
	mu     sync.Mutex // serializes conn writes
}

func NewClient(conn *websocket.Conn, userID, owner string) *Client {
	return &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		Owner:  owner,
		Conn:   conn,
		Send:   make(chan []byte, 256),
	}
}

// WriteLoop handles outbound messages from the Send channel
func (c *Client) WriteLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.close()
			return
		case msg, ok := <-c.Send:
			if !ok {
				c.close()
				return
			}
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(messageType, data)
}

func (c *Client) close() {
	c.mu.Lock()
	_ = c.Conn.Close()
	c.mu.Unlock()
}

// SendMessage queues msg without blocking. A slow client loses messages
// rather than stalling the projection.
func (c *Client) SendMessage(msg []byte) {
	select {
	case c.Send <- msg:
	default:
	}
}
