// Package ringchan provides a bounded queue with overwrite-oldest semantics
// that consumers read like a channel.
package ringchan

import "sync"

// RingChannel is a bounded channel-like buffer with overwrite-oldest semantics.
//
// Producers never block: when the buffer is full the oldest element is discarded.
// Consumers range over C() until Close.
//
//	rc := ringchan.New[Report](3)
//	for i := 0; i < 10; i++ {
//	    rc.Send(r) // only the last 3 survive if nobody reads
//	}
type RingChannel[T any] struct {
	ch chan T

	// producers are serialized so the drop-then-send pair is atomic
	mu     sync.Mutex
	closed bool
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts v, discarding the oldest element if the buffer is full.
// It reports whether an element was dropped; sending on a closed RingChannel is a no-op
// that returns (false, false).
func (rc *RingChannel[T]) Send(v T) (accepted, dropped bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		return false, false
	}
	select {
	case rc.ch <- v:
		return true, false
	default:
	}

	select {
	case <-rc.ch: // drop oldest
		dropped = true
	default:
		// a consumer emptied a slot meanwhile
	}
	rc.ch <- v
	return true, dropped
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Cap returns the capacity.
func (rc *RingChannel[T]) Cap() int {
	return cap(rc.ch)
}

// Close closes the underlying channel; buffered elements stay readable. Idempotent.
func (rc *RingChannel[T]) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		return
	}
	rc.closed = true
	close(rc.ch)
}
