// Package hub implements the in-memory broadcast channel that couples every
// live connection of the relay.
//
// A Hub keeps the last K published payloads in a ring. Each Subscription
// holds its own cursor into that ring, so a slow reader never slows the
// publisher or the other readers; once a reader falls more than K payloads
// behind, its next Receive reports a LagError and resumes from the oldest
// payload still retained.
package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultCapacity is the number of payloads retained for lagging readers.
const DefaultCapacity = 1000

// ErrClosed is returned by Publish after Close, and by Receive once a closed
// hub has nothing left to deliver or the subscription itself was closed.
var ErrClosed = errors.New("hub: closed")

// LagError reports that a subscriber fell behind the retention bound and
// Missed payloads were dropped for it. It is recoverable.
type LagError struct {
	Missed uint64
}

// Error reports how many payloads were skipped.
func (e *LagError) Error() string {
	return fmt.Sprintf("hub: subscriber lagged, %d payloads dropped", e.Missed)
}

// IsLagged reports whether err is a LagError and returns the drop count.
func IsLagged(err error) (uint64, bool) {
	var lag *LagError
	if errors.As(err, &lag) {
		return lag.Missed, true
	}
	return 0, false
}

// Hub is a bounded many-reader broadcast ring. All methods are safe for
// concurrent use.
type Hub struct {
	mu          sync.Mutex
	ring        []string
	tail        uint64 // sequence number of the next publish
	subscribers int
	closed      bool
	wake        chan struct{}
}

// New creates a hub retaining up to capacity payloads. A non-positive
// capacity falls back to DefaultCapacity.
func New(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Hub{
		ring: make([]string, capacity),
		wake: make(chan struct{}),
	}
}

// Capacity returns the retention bound K.
func (h *Hub) Capacity() int {
	return len(h.ring)
}

// Subscribers returns the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subscribers
}

// Publish hands payload to every current subscriber and returns how many
// there were. It never blocks on readers. With no subscribers the payload is
// dropped and (0, nil) is returned.
func (h *Hub) Publish(payload string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, ErrClosed
	}
	if h.subscribers == 0 {
		return 0, nil
	}

	h.ring[h.tail%uint64(len(h.ring))] = payload
	h.tail++

	close(h.wake)
	h.wake = make(chan struct{})
	return h.subscribers, nil
}

// Subscribe returns a subscription that sees every payload published after
// this call. It must be closed when no longer read.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.subscribers++
	return &Subscription{hub: h, next: h.tail, done: make(chan struct{})}
}

// Close stops the hub. Pending payloads stay readable; afterwards Receive
// returns ErrClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	close(h.wake)
}

// Subscription is one reader's cursor into the hub.
type Subscription struct {
	hub    *Hub
	next   uint64
	closed bool
	// done is closed by Close to release a blocked Receive.
	done chan struct{}
}

// Receive waits for the next payload. It returns a *LagError when payloads
// were dropped for this reader, ErrClosed when the hub or subscription is
// closed, or ctx.Err() when ctx ends first.
//
// A Subscription is read by one goroutine at a time.
func (s *Subscription) Receive(ctx context.Context) (string, error) {
	h := s.hub
	for {
		h.mu.Lock()
		if s.closed {
			h.mu.Unlock()
			return "", ErrClosed
		}

		if s.next < h.tail {
			capacity := uint64(len(h.ring))
			if h.tail-s.next > capacity {
				oldest := h.tail - capacity
				missed := oldest - s.next
				s.next = oldest
				h.mu.Unlock()
				return "", &LagError{Missed: missed}
			}
			payload := h.ring[s.next%capacity]
			s.next++
			h.mu.Unlock()
			return payload, nil
		}

		if h.closed {
			h.mu.Unlock()
			return "", ErrClosed
		}
		wake := h.wake
		h.mu.Unlock()

		select {
		case <-wake:
		case <-s.done:
			return "", ErrClosed
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Close releases the subscription and wakes a Receive blocked on it. It is
// idempotent.
func (s *Subscription) Close() {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	h.subscribers--
}
