package watch

import (
	"context"
	"sync"

	"github.com/lifetrack/slawatch/internal/models"
)

// Key identifies one view of one occurrence.
type Key struct {
	OccurrenceID string
	ViewerID     string
	// Live keeps the history refreshing; views asking for a one-shot trail
	// get their own session.
	Live         bool
}

// Factory builds the session for a key.
type Factory func(key Key, viewer models.Session) *Session

type registryEntry struct {
	session *Session
	refs    int
	ready   chan struct{}
	err     error
}

// Registry shares sessions between concurrent viewers of the same view and
// closes a session when its last viewer releases it.
type Registry struct {
	ctx     context.Context
	factory Factory

	mu      sync.Mutex
	entries map[Key]*registryEntry
}

// NewRegistry builds a registry. Sessions run under ctx, not under the
// context of the viewer that happened to open them.
func NewRegistry(ctx context.Context, factory Factory) *Registry {
	return &Registry{ctx: ctx, factory: factory, entries: make(map[Key]*registryEntry)}
}

// Acquire returns the open session for key, opening it on first use. The
// returned release func must be called exactly once.
func (r *Registry) Acquire(ctx context.Context, key Key, viewer models.Session) (*Session, func(), error) {
	r.mu.Lock()
	entry, ok := r.entries[key]
	if !ok {
		entry = &registryEntry{session: r.factory(key, viewer), ready: make(chan struct{})}
		r.entries[key] = entry
	}
	entry.refs++
	r.mu.Unlock()

	if !ok {
		entry.err = entry.session.Open(r.ctx)
		close(entry.ready)
	}

	select {
	case <-entry.ready:
	case <-ctx.Done():
		r.release(key, entry)
		return nil, nil, ctx.Err()
	}
	if entry.err != nil {
		r.release(key, entry)
		return nil, nil, entry.err
	}

	var once sync.Once
	return entry.session, func() { once.Do(func() { r.release(key, entry) }) }, nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close closes every session.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[Key]*registryEntry)
	r.mu.Unlock()

	for _, entry := range entries {
		entry.session.Close()
	}
}

func (r *Registry) release(key Key, entry *registryEntry) {
	r.mu.Lock()
	entry.refs--
	last := entry.refs == 0
	if last && r.entries[key] == entry {
		delete(r.entries, key)
	}
	r.mu.Unlock()

	if last {
		entry.session.Close()
	}
}
