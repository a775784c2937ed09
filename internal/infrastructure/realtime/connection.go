package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Socket is the subset of *websocket.Conn the realtime layer writes to.
// Tests substitute a fake; production always passes a gorilla connection.
type Socket interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Connection wraps an authenticated websocket and coordinates outbound
// writes via a buffered channel. It carries the identity derived at
// connection time and the liveness flag driven by the heartbeat sweep.
// A connection is safe for concurrent use.
type Connection struct {
	ID       string
	UserID   string
	TenantID string
	Role     string

	ws    Socket
	send  chan []byte
	once  sync.Once
	close chan struct{}

	mu     sync.Mutex
	alive  bool
	joined map[string]struct{}
}

// NewConnection constructs a Connection for an authenticated user.
// The connection starts out alive; the heartbeat sweep clears and
// re-probes the flag on its own cadence.
func NewConnection(userID, tenantID, role string, ws Socket) *Connection {
	return &Connection{
		ID:       uuid.NewString(),
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
		ws:       ws,
		send:     make(chan []byte, 128),
		close:    make(chan struct{}),
		alive:    true,
		joined:   make(map[string]struct{}),
	}
}

// Start launches the write loop. It must be called exactly once per connection.
func (c *Connection) Start() {
	go c.writeLoop()
}

// Send enqueues payload for delivery. If the client is slow and the buffer is
// full, the connection is closed to keep backpressure bounded.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.close:
		return errors.New("connection closed")
	case c.send <- payload:
		return nil
	default:
		c.Close(websocket.CloseGoingAway, "send buffer full")
		return errors.New("connection buffer exceeded")
	}
}

// Close terminates the connection and stops the write loop. It is safe to
// call from any goroutine and any number of times.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.close)
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

// Closed reports whether Close has run.
func (c *Connection) Closed() bool {
	select {
	case <-c.close:
		return true
	default:
		return false
	}
}

// Ping sends a protocol-level ping probe.
func (c *Connection) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// MarkAlive records that the peer answered a probe (or sent any pong).
func (c *Connection) MarkAlive() {
	c.mu.Lock()
	c.alive = true
	c.mu.Unlock()
}

// ClearAlive resets the liveness flag ahead of the next probe.
func (c *Connection) ClearAlive() {
	c.mu.Lock()
	c.alive = false
	c.mu.Unlock()
}

// Alive reports whether the peer responded since the last sweep.
func (c *Connection) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

// JoinConversation records the conversation in the connection-local cache.
// The cache is advisory; authorization always goes through the store.
func (c *Connection) JoinConversation(conversationID string) {
	c.mu.Lock()
	c.joined[conversationID] = struct{}{}
	c.mu.Unlock()
}

// InConversation reports whether the connection joined the conversation.
func (c *Connection) InConversation(conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.joined[conversationID]
	return ok
}

func (c *Connection) writeLoop() {
	for {
		select {
		case <-c.close:
			return
		case msg := <-c.send:
			if err := c.writeMessage(msg); err != nil {
				return
			}
		}
	}
}

func (c *Connection) writeMessage(payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}
