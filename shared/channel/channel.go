// Package channel provides a typed, closable handoff queue with three
// buffering policies.
//
// Unlike a plain Go channel, a Channel can be closed while senders are
// blocked, reports closure as an error instead of panicking, and supports a
// conflated policy where a new value silently replaces an unread one.
//
// Conflation is lossy by design: values sent faster than they are received
// are dropped and only the most recent one is observed.
package channel

import (
	"context"
	"errors"
	"sync"
)

// Policy selects how values are buffered between Send and Receive.
type Policy int

const (
	// Rendezvous blocks the sender until a receiver takes the value.
	Rendezvous Policy = iota
	// Conflated keeps at most one value; a new Send overwrites an unread one.
	Conflated
	// Unlimited enqueues every value in an unbounded FIFO.
	Unlimited
)

func (p Policy) String() string {
	switch p {
	case Rendezvous:
		return "rendezvous"
	case Conflated:
		return "conflated"
	case Unlimited:
		return "unlimited"
	default:
		return "unknown"
	}
}

// ErrClosed is returned by Send after Close, and by Receive once the
// channel is closed and drained.
var ErrClosed = errors.New("channel is closed")

// Channel is safe for concurrent use by any number of senders and receivers.
type Channel[T any] struct {
	policy Policy

	// buffered policies
	mu     sync.Mutex
	buf    []T
	closed bool
	signal chan struct{}

	// rendezvous policy
	handoff chan T

	done      chan struct{}
	closeOnce sync.Once
}

// New creates an open channel with the given policy.
func New[T any](policy Policy) *Channel[T] {
	c := &Channel[T]{
		policy: policy,
		signal: make(chan struct{}),
		done:   make(chan struct{}),
	}
	if policy == Rendezvous {
		c.handoff = make(chan T)
	}
	return c
}

// Policy reports the buffering policy the channel was created with.
func (c *Channel[T]) Policy() Policy {
	return c.policy
}

// Send delivers v according to the channel policy.
// Only the rendezvous policy blocks; it returns ctx.Err() if ctx ends first.
func (c *Channel[T]) Send(ctx context.Context, v T) error {
	if c.policy == Rendezvous {
		select {
		case <-c.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		select {
		case c.handoff <- v:
			return nil
		case <-c.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.policy == Conflated {
		c.buf = c.buf[:0]
	}
	c.buf = append(c.buf, v)
	c.wakeLocked()
	return nil
}

// Receive blocks until a value is available, the channel is closed and
// drained (ErrClosed), or ctx ends (ctx.Err()).
func (c *Channel[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	if c.policy == Rendezvous {
		select {
		case v := <-c.handoff:
			return v, nil
		case <-c.done:
			return zero, ErrClosed
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	for {
		c.mu.Lock()
		if len(c.buf) > 0 {
			v := c.buf[0]
			c.buf[0] = zero
			c.buf = c.buf[1:]
			c.mu.Unlock()
			return v, nil
		}
		if c.closed {
			c.mu.Unlock()
			return zero, ErrClosed
		}
		wait := c.signal
		c.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// TryReceive takes a value only if one is ready without blocking.
func (c *Channel[T]) TryReceive() (T, bool) {
	var zero T
	if c.policy == Rendezvous {
		select {
		case v := <-c.handoff:
			return v, true
		default:
			return zero, false
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buf) == 0 {
		return zero, false
	}
	v := c.buf[0]
	c.buf[0] = zero
	c.buf = c.buf[1:]
	return v, true
}

// Close is one-shot; later calls are no-ops.
// Values already buffered can still be received.
func (c *Channel[T]) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.wakeLocked()
		c.mu.Unlock()
		close(c.done)
	})
}

// Done is closed once Close has been called.
func (c *Channel[T]) Done() <-chan struct{} {
	return c.done
}

// Len returns the number of buffered values. Always 0 for Rendezvous.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

func (c *Channel[T]) wakeLocked() {
	close(c.signal)
	c.signal = make(chan struct{})
}
