package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lifetrack/slawatch/internal/models"
	"github.com/lifetrack/slawatch/internal/utils"
)

const tick = 10 * time.Millisecond

type fakeDispatch struct {
	mu            sync.Mutex
	phase         models.Phase
	snap          models.Snapshot
	events        []models.HistoryEvent
	occurrenceErr error
	timerCalls    map[string]int
	historyCalls  map[string]int
	phaseCalls    int
}

func newFakeDispatch(phase models.Phase) *fakeDispatch {
	return &fakeDispatch{
		phase: phase,
		snap: models.Snapshot{
			SLAMinutes:                models.Float(30),
			ElapsedSLAMinutes:         6,
			WasDispatched:             true,
			RemainingToArrivalMinutes: models.Float(4),
		},
		events: []models.HistoryEvent{
			{ID: "1", Action: models.ActionOpened},
			{ID: "2", Action: models.ActionDispatched},
		},
		timerCalls:   make(map[string]int),
		historyCalls: make(map[string]int),
	}
}

func (f *fakeDispatch) FetchTimer(ctx context.Context, session models.Session, occurrenceID string) (models.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timerCalls[occurrenceID]++
	snap := f.snap
	snap.OccurrenceID = occurrenceID
	return snap, nil
}

func (f *fakeDispatch) FetchHistory(ctx context.Context, session models.Session, occurrenceID string) ([]models.HistoryEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls[occurrenceID]++
	return append([]models.HistoryEvent(nil), f.events...), nil
}

func (f *fakeDispatch) FetchOccurrence(ctx context.Context, session models.Session, occurrenceID string) (models.Occurrence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.phaseCalls++
	if f.occurrenceErr != nil {
		return models.Occurrence{}, f.occurrenceErr
	}
	return models.Occurrence{ID: occurrenceID, Phase: f.phase}, nil
}

func (f *fakeDispatch) setPhase(phase models.Phase) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.phase = phase
}

func (f *fakeDispatch) setSnapshot(snap models.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = snap
}

func (f *fakeDispatch) timers(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timerCalls[id]
}

func (f *fakeDispatch) histories(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.historyCalls[id]
}

func (f *fakeDispatch) sources() Sources {
	return Sources{Timers: f, History: f, Occurrences: f}
}

func newTestSession(f *fakeDispatch, opts Options) *Session {
	opts.OccurrenceID = firstSet(opts.OccurrenceID, "occ-1")
	if opts.TimerInterval == 0 {
		opts.TimerInterval = tick
	}
	if opts.HistoryInterval == 0 {
		opts.HistoryInterval = tick
	}
	opts.Logger = utils.DiscardLogger()
	return NewSession(f.sources(), opts)
}

func firstSet(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// nextOf reads events until one of kind arrives.
func nextOf(t *testing.T, ch <-chan Event, kind EventKind) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed while waiting for %s", kind)
			}
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}
