// Package broadcast implements a single-producer, multi-consumer fan-out
// channel over a bounded ring of retained messages. Publishing never blocks:
// each subscriber tracks its own cursor into the ring, and one that falls
// behind the retained capacity observes a single LaggedError before resuming
// from the oldest message still held.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Recv after the channel is closed and the
// subscriber has drained everything retained, and by Publish after Close.
var ErrClosed = errors.New("broadcast: channel closed")

// LaggedError reports that a subscriber fell behind the retained backlog and
// its cursor was skipped forward. Receiving resumes normally on the next call.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("broadcast: lagged, %d messages skipped", e.Skipped)
}

// Channel fans one producer's messages out to any number of independent
// subscribers. The channel holds no reference to its subscribers; each
// message is copied by value into the ring and delivery is pull-based.
type Channel[T any] struct {
	mu     sync.Mutex
	buf    []T
	head   uint64 // sequence of the oldest retained message
	tail   uint64 // sequence the next published message will take
	closed bool
	wake   chan struct{} // closed and replaced on every publish
}

// New creates a channel that retains up to capacity undelivered messages.
// Capacity below one is raised to one.
func New[T any](capacity int) *Channel[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Channel[T]{
		buf:  make([]T, capacity),
		wake: make(chan struct{}),
	}
}

// Publish appends one message, evicting the oldest retained message when the
// ring is full. It never blocks on subscribers.
func (c *Channel[T]) Publish(v T) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.buf[c.tail%uint64(len(c.buf))] = v
	c.tail++
	if c.tail-c.head > uint64(len(c.buf)) {
		c.head = c.tail - uint64(len(c.buf))
	}
	wake := c.wake
	c.wake = make(chan struct{})
	c.mu.Unlock()

	close(wake)
	return nil
}

// Close marks the channel closed. Subscribers drain whatever is still
// retained and then receive ErrClosed. Close is idempotent.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	wake := c.wake
	c.wake = make(chan struct{})
	c.mu.Unlock()

	close(wake)
}

// Subscribe returns a subscriber positioned at the current tail: it observes
// only messages published after this call.
func (c *Channel[T]) Subscribe() *Subscriber[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &Subscriber[T]{ch: c, next: c.tail}
}

// Subscriber is one consumer's cursor into a Channel. A Subscriber must not
// be shared between goroutines.
type Subscriber[T any] struct {
	ch   *Channel[T]
	next uint64
}

// Recv returns the next message for this subscriber, blocking until one is
// available, the context is done, or the channel closes. If the subscriber
// has fallen behind the retained backlog, Recv skips the cursor forward and
// returns a LaggedError carrying the gap size exactly once; the following
// call continues from the oldest retained message. Messages that are
// delivered always arrive in publish order.
func (s *Subscriber[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	c := s.ch
	for {
		c.mu.Lock()
		if s.next < c.head {
			skipped := c.head - s.next
			s.next = c.head
			c.mu.Unlock()
			return zero, &LaggedError{Skipped: skipped}
		}
		if s.next < c.tail {
			v := c.buf[s.next%uint64(len(c.buf))]
			s.next++
			c.mu.Unlock()
			return v, nil
		}
		if c.closed {
			c.mu.Unlock()
			return zero, ErrClosed
		}
		wake := c.wake
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-wake:
		}
	}
}

// Pending reports how many retained messages the subscriber has not yet
// received. A count above the channel capacity means the next Recv will
// report lag.
func (s *Subscriber[T]) Pending() int {
	c := s.ch
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.tail - s.next)
}
