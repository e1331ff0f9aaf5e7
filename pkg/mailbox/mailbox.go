// Package mailbox provides a single-slot, latest-wins handoff between goroutines.
package mailbox

import "sync"

// Mailbox holds at most one value. Put never blocks: a new value replaces an unread one.
// The zero value is not usable; call New.
type Mailbox[T any] struct {
	mu    sync.Mutex
	val   T
	full  bool // val has not been taken yet
	set   bool // a value has ever been put
	seq   uint64
	ready chan struct{}
}

// New returns an empty mailbox.
func New[T any]() *Mailbox[T] {
	return &Mailbox[T]{ready: make(chan struct{}, 1)}
}

// Put stores v. If the previous value was never taken it is returned with replaced=true so
// the caller can release it.
func (m *Mailbox[T]) Put(v T) (prev T, replaced bool) {
	m.mu.Lock()
	prev, replaced = m.val, m.full
	m.val = v
	m.full = true
	m.set = true
	m.seq++
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
	return prev, replaced
}

// Load returns the latest value without consuming it. ok is false until the first Put.
func (m *Mailbox[T]) Load() (v T, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.val, m.set
}

// Take consumes the unread value, if any. A taken value is not returned by Take again, but
// Load still reports it.
func (m *Mailbox[T]) Take() (v T, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.full {
		var zero T
		return zero, false
	}
	m.full = false
	return m.val, true
}

// Seq returns the number of Puts so far.
func (m *Mailbox[T]) Seq() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq
}

// Updated returns a channel that receives after a Put. Several Puts may coalesce into one
// signal, so receivers should Take or Load the latest value rather than count signals.
func (m *Mailbox[T]) Updated() <-chan struct{} {
	return m.ready
}
