package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lifetrack/slawatch/internal/models"
	"github.com/lifetrack/slawatch/internal/utils"
)

const tick = 10 * time.Millisecond

var errUpstream = errors.New("upstream returned 503 Service Unavailable")

type timerResponse struct {
	snap models.Snapshot
	err  error
}

type fakeTimerSource struct {
	mu        sync.Mutex
	calls     int
	responses []timerResponse
	gate      chan struct{}
	entered   chan struct{}
}

func (f *fakeTimerSource) FetchTimer(ctx context.Context, session models.Session, occurrenceID string) (models.Snapshot, error) {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	gate, entered := f.gate, f.entered
	f.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}

	if len(f.responses) == 0 {
		return models.Snapshot{OccurrenceID: occurrenceID}, nil
	}
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	r := f.responses[idx]
	return r.snap, r.err
}

func (f *fakeTimerSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeHistorySource struct {
	mu     sync.Mutex
	calls  int
	events []models.HistoryEvent
	err    error
}

func (f *fakeHistorySource) FetchHistory(ctx context.Context, session models.Session, occurrenceID string) ([]models.HistoryEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.HistoryEvent(nil), f.events...), nil
}

func (f *fakeHistorySource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type updateLog[T any] struct {
	mu      sync.Mutex
	updates []T
}

func (l *updateLog[T]) add(u T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updates = append(l.updates, u)
}

func (l *updateLog[T]) all() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]T(nil), l.updates...)
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

func waitClosed(t *testing.T, what string, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func travelling() models.Snapshot {
	return models.Snapshot{
		SLAMinutes:                models.Float(30),
		ElapsedSLAMinutes:         8,
		WasDispatched:             true,
		RemainingToArrivalMinutes: models.Float(5),
	}
}

func returned() models.Snapshot {
	return models.Snapshot{
		SLAMinutes:           models.Float(30),
		ElapsedSLAMinutes:    18,
		WasDispatched:        true,
		ArrivedOnScene:       true,
		WasConcluded:         true,
		ReturnedToBase:       true,
		ReturnElapsedMinutes: models.Float(12),
	}
}

var quietLogger = utils.DiscardLogger()
