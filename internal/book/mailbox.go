package book

import (
	"sync"
	"sync/atomic"
)

// Mailbox is a single-slot, latest-wins queue. Put never blocks; a value that
// was not taken before the next Put is discarded.
type Mailbox[T any] struct {
	mu      sync.Mutex
	val     T
	full    bool
	closed  bool
	signal  chan struct{}
	dropped atomic.Uint64
}

func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{signal: make(chan struct{}, 1)}
}

// Put stores v, replacing any pending value. It reports false once the
// mailbox is closed.
func (m *Mailbox[T]) Put(v T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	if m.full {
		m.dropped.Add(1)
	}
	m.val = v
	m.full = true
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

// C fires when a value may be pending. Always follow with Take.
func (m *Mailbox[T]) C() <-chan struct{} {
	return m.signal
}

// Take empties the slot.
func (m *Mailbox[T]) Take() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	if !m.full {
		return zero, false
	}
	v := m.val
	m.val = zero
	m.full = false
	return v, true
}

// Close stops accepting values. A pending value can still be taken.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

// Dropped is the number of values overwritten before being taken.
func (m *Mailbox[T]) Dropped() uint64 {
	return m.dropped.Load()
}
