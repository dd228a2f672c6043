// Package msgbus provides the one-way, fire-and-forget channels that connect
// the operator panel, the control loop and the page actuator.
//
// Delivery is at-most-once: Send never blocks, and a message that cannot be
// buffered is dropped. Senders must not assume the receiver saw anything.
package msgbus

import (
	"context"
	"errors"
	"sync"
)

// ErrDropped is returned when a message could not be queued.
var ErrDropped = errors.New("message dropped")

// DefaultCapacity is the buffer size used when none is given.
const DefaultCapacity = 64

// Sender is the sending half of a channel.
type Sender[T any] interface {
	Send(msg T) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc[T any] func(msg T) error

// Send calls f(msg).
func (f SenderFunc[T]) Send(msg T) error {
	return f(msg)
}

// Channel is a buffered FIFO with drop-on-full semantics.
type Channel[T any] struct {
	ch     chan T
	mu     sync.RWMutex
	closed bool
}

// New creates a channel holding up to capacity undelivered messages.
func New[T any](capacity int) *Channel[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Channel[T]{ch: make(chan T, capacity)}
}

// Send queues msg without blocking. It returns ErrDropped if the buffer is
// full or the channel has been closed.
func (c *Channel[T]) Send(msg T) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrDropped
	}

	select {
	case c.ch <- msg:
		return nil
	default:
		return ErrDropped
	}
}

// Receive blocks until a message arrives, the channel is closed, or ctx is
// done. ok is false in the latter two cases.
func (c *Channel[T]) Receive(ctx context.Context) (msg T, ok bool) {
	select {
	case msg, ok = <-c.ch:
		return msg, ok
	case <-ctx.Done():
		return msg, false
	}
}

// C exposes the receive side for use in select statements.
func (c *Channel[T]) C() <-chan T {
	return c.ch
}

// Len returns the number of queued messages.
func (c *Channel[T]) Len() int {
	return len(c.ch)
}

// Close stops accepting messages. Already queued messages can still be
// received. Close is idempotent.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}
