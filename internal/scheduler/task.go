// Package scheduler drives periodic snapshot and history acquisition for one
// displayed occurrence. All pending work stops on teardown; results that land
// after teardown are discarded.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTaskStarted is returned when Start is called twice on the same Task.
var ErrTaskStarted = errors.New("task already started")

// Task runs fn on a fixed cadence until cancelled. Invocations never overlap:
// a slow fn delays the next tick instead of running alongside it.
type Task struct {
	interval time.Duration
	fn       func(ctx context.Context)

	mu        sync.Mutex
	started   bool
	cancelled bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewTask builds a task; it does nothing until Start.
func NewTask(interval time.Duration, fn func(ctx context.Context)) *Task {
	if interval <= 0 {
		interval = time.Second
	}
	return &Task{interval: interval, fn: fn, done: make(chan struct{})}
}

// Start begins ticking. The first invocation happens one interval after Start.
func (t *Task) Start(parent context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return ErrTaskStarted
	}
	t.started = true
	if t.cancelled {
		close(t.done)
		return nil
	}

	ctx, cancel := context.WithCancel(parent)
	t.cancel = cancel
	go t.loop(ctx)
	return nil
}

// Cancel stops the task. No invocation begins after Cancel returns; an
// in-flight one sees its context cancelled and is not waited for, so Cancel
// is safe to call from inside fn or while holding a lock fn takes. Callers
// that must wait use Done. Cancel is idempotent.
func (t *Task) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancelled = true
	if t.cancel != nil {
		t.cancel()
	}
}

// Alive reports whether the task has started and not been cancelled.
func (t *Task) Alive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started && !t.cancelled
}

// Done is closed once the ticking goroutine has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) loop(ctx context.Context) {
	defer close(t.done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !t.shouldRun(ctx) {
				return
			}
			t.fn(ctx)
		}
	}
}

func (t *Task) shouldRun(ctx context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.cancelled && ctx.Err() == nil
}
