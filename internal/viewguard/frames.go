package viewguard

import "sync"

// ManualFrames queues callbacks until Flush is called. In-process hosts call
// Flush after their layout pass; tests drive it directly.
type ManualFrames struct {
	mu      sync.Mutex
	pending []func()
}

// RequestFrame queues fn for the next Flush.
func (m *ManualFrames) RequestFrame(fn func()) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.pending = append(m.pending, fn)
	m.mu.Unlock()
}

// Flush runs every queued callback and returns how many ran. Callbacks queued
// while flushing wait for the following Flush.
func (m *ManualFrames) Flush() int {
	m.mu.Lock()
	queue := m.pending
	m.pending = nil
	m.mu.Unlock()

	for _, fn := range queue {
		fn()
	}
	return len(queue)
}

// Pending reports the number of queued callbacks.
func (m *ManualFrames) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
