package watch

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lifetrack/slawatch/internal/metrics"
	"github.com/lifetrack/slawatch/internal/models"
)

// EventKind names what an Event carries.
type EventKind string

const (
	EventPhase      EventKind = "phase"
	EventProgress   EventKind = "progress"
	EventHistory    EventKind = "history"
	EventError      EventKind = "error"
	EventTerminated EventKind = "terminated"
)

// Error sources.
const (
	SourceTimer   = metrics.KindTimer
	SourceHistory = metrics.KindHistory
)

// replayOrder lists the kinds a late subscriber receives on Subscribe.
var replayOrder = []EventKind{EventPhase, EventHistory, EventProgress, EventTerminated}

// Event is one update of a watched occurrence.
type Event struct {
	Kind         EventKind
	OccurrenceID string
	Phase        models.Phase
	Progress     *models.ProgressResult
	History      []models.HistoryEvent
	Source       string
	Err          string
	At           time.Time
}

const defaultSubscriberBuffer = 16

// Hub fans events out to subscribers without ever blocking the publisher.
// A slow subscriber loses its oldest queued event.
type Hub struct {
	mu      sync.Mutex
	buffer  int
	subs    map[string]chan Event
	latest  map[EventKind]Event
	dropped int
	closed  bool
}

// NewHub builds a hub; buffer below the replay depth is raised to the default.
func NewHub(buffer int) *Hub {
	if buffer < len(replayOrder) {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{
		buffer: buffer,
		subs:   make(map[string]chan Event),
		latest: make(map[EventKind]Event),
	}
}

// Subscribe registers a subscriber. The channel first receives the latest
// phase, history, progress and terminated events, then live ones. The
// returned func unsubscribes and closes the channel; it is safe to call twice.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, h.buffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	for _, kind := range replayOrder {
		if ev, ok := h.latest[kind]; ok {
			ch <- ev
		}
	}
	id := uuid.NewString()
	h.subs[id] = ch
	return ch, func() { h.unsubscribe(id) }
}

// Publish delivers ev to every subscriber.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if ev.Kind != EventError {
		h.latest[ev.Kind] = ev
	}
	for _, ch := range h.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
			h.dropped++
		}
	}
}

// Reset forgets the replay state, used when the watched target changes.
func (h *Hub) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = make(map[EventKind]Event)
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many events could not be delivered.
func (h *Hub) Dropped() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Close closes every subscriber channel; later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		close(ch)
		delete(h.subs, id)
	}
}
