package notify

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

// FlushInterval is the fixed idle between delivery cycles. The loop is a
// bounded-latency poller: a message waits at most one interval plus the time
// to drain whatever is ahead of it.
const FlushInterval = 100 * time.Millisecond

// WireSender is the sending half of a websocket connection.
type WireSender interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Conn is one live connection's delivery loop state. It owns a FIFO queue of
// pending outbound messages and removes itself from the registry by id when
// the loop exits.
type Conn struct {
	ID     string
	UserID string

	wire     WireSender
	queue    *Queue
	registry *Registry

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// NewConn creates an idle connection for a user. It becomes active once added
// to the registry and Run is started.
func NewConn(userID string, wire WireSender, registry *Registry) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		ID:       uuid.NewString(),
		UserID:   userID,
		wire:     wire,
		queue:    NewQueue(),
		registry: registry,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Enqueue appends a serialized message for the next flush cycle. Messages
// enqueued during a flush are carried over, never dropped or reordered.
func (c *Conn) Enqueue(msg []byte) {
	c.queue.Push(msg)
}

// Pending returns the number of messages waiting for delivery.
func (c *Conn) Pending() int {
	return c.queue.Len()
}

// Stop cancels the delivery loop. The loop observes cancellation within one
// flush interval and deregisters exactly once.
func (c *Conn) Stop() {
	c.cancel()
}

// Wait blocks until Run has exited. After Wait returns the loop writes no
// further frames, so the caller may close the wire without racing it.
func (c *Conn) Wait() {
	<-c.done
}

// Run drives the delivery loop until cancellation or an unrecoverable send
// failure. Each cycle drains exactly the messages present at cycle start, in
// FIFO order, as text frames, then idles for the flush interval.
func (c *Conn) Run() {
	defer close(c.done)
	defer c.deregister()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		pending := c.queue.Len()
		for i := 0; i < pending; i++ {
			msg, ok := c.queue.PopFront()
			if !ok {
				break
			}
			if err := c.wire.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(FlushInterval):
		}
	}
}

// deregister removes this connection from its owner's set by identity.
// Safe against concurrent registry mutation and against double invocation.
func (c *Conn) deregister() {
	c.once.Do(func() {
		c.cancel()
		if c.registry != nil {
			c.registry.Remove(c.UserID, c.ID)
		}
	})
}
