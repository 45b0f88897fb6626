package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/mcoot/noughts/internal/model"
)

// sendBufferSize is the number of undelivered messages a connection may hold
const sendBufferSize = 64

// Message is an encoded event ready to be framed by a transport
type Message struct {
	Type    model.EventType
	Payload json.RawMessage
}

// envelope is the WebSocket framing of a message
type envelope struct {
	Type    model.EventType `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Envelope returns the message as a {"type","payload"} JSON object
func (m Message) Envelope() []byte {
	payload := m.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	data, _ := json.Marshal(envelope{Type: m.Type, Payload: payload})
	return data
}

// Conn is the server side of one live client connection
type Conn struct {
	id          string
	userID      model.UserID
	transport   string
	connectedAt time.Time

	send      chan Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewConn creates a connection handle for a user
func NewConn(id string, userID model.UserID, transport string, connectedAt time.Time) *Conn {
	return &Conn{
		id:          id,
		userID:      userID,
		transport:   transport,
		connectedAt: connectedAt,
		send:        make(chan Message, sendBufferSize),
		done:        make(chan struct{}),
	}
}

// ID returns the connection id
func (c *Conn) ID() string {
	return c.id
}

// UserID returns the owning user
func (c *Conn) UserID() model.UserID {
	return c.userID
}

// Transport returns the transport name (sse or ws)
func (c *Conn) Transport() string {
	return c.transport
}

// ConnectedAt returns when the connection was opened
func (c *Conn) ConnectedAt() time.Time {
	return c.connectedAt
}

// Send queues a message without blocking. Returns false if the connection
// is closed or its buffer is full.
func (c *Conn) Send(msg Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Messages returns the queue of outgoing messages
func (c *Conn) Messages() <-chan Message {
	return c.send
}

// Done is closed once the connection has been closed
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close marks the connection closed; safe to call more than once
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// IsClosed returns true once Close has been called
func (c *Conn) IsClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
