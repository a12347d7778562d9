package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestTaskTicksUntilCancelled(t *testing.T) {
	var runs atomic.Int32
	task := NewTask(tick, func(context.Context) { runs.Add(1) })
	if err := task.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !task.Alive() {
		t.Fatalf("expected task alive after start")
	}

	waitFor(t, "three ticks", func() bool { return runs.Load() >= 3 })
	task.Cancel()
	waitClosed(t, "task exit", task.Done())

	settled := runs.Load()
	time.Sleep(5 * tick)
	if runs.Load() != settled {
		t.Fatalf("task ran after cancel: %d -> %d", settled, runs.Load())
	}
	if task.Alive() {
		t.Fatalf("cancelled task must not be alive")
	}
}

func TestTaskCancelFromInsideFn(t *testing.T) {
	var runs atomic.Int32
	var task *Task
	task = NewTask(tick, func(context.Context) {
		runs.Add(1)
		task.Cancel()
	})
	if err := task.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitClosed(t, "task exit", task.Done())
	time.Sleep(3 * tick)
	if runs.Load() != 1 {
		t.Fatalf("expected exactly one run, got %d", runs.Load())
	}
}

func TestTaskStartTwice(t *testing.T) {
	task := NewTask(tick, func(context.Context) {})
	defer task.Cancel()
	if err := task.Start(context.Background()); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := task.Start(context.Background()); !errors.Is(err, ErrTaskStarted) {
		t.Fatalf("expected ErrTaskStarted, got %v", err)
	}
}

func TestTaskCancelBeforeStart(t *testing.T) {
	var runs atomic.Int32
	task := NewTask(tick, func(context.Context) { runs.Add(1) })
	task.Cancel()
	if err := task.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitClosed(t, "task exit", task.Done())
	time.Sleep(3 * tick)
	if runs.Load() != 0 {
		t.Fatalf("cancelled task must never run, got %d", runs.Load())
	}
}

func TestTaskStopsWithParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	task := NewTask(tick, func(context.Context) {})
	if err := task.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()
	waitClosed(t, "task exit", task.Done())
}

func TestTaskCancelDoesNotWaitForInFlightRun(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var runs atomic.Int32
	var sawCancel atomic.Bool
	task := NewTask(tick, func(ctx context.Context) {
		if runs.Add(1) > 1 {
			return
		}
		close(entered)
		<-ctx.Done()
		sawCancel.Store(true)
		<-release
	})
	if err := task.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitClosed(t, "first run", entered)

	cancelled := make(chan struct{})
	go func() {
		task.Cancel()
		close(cancelled)
	}()
	waitClosed(t, "cancel return", cancelled)
	waitFor(t, "run observes cancellation", sawCancel.Load)

	select {
	case <-task.Done():
		t.Fatalf("task must not report done while a run is in flight")
	default:
	}
	close(release)
	waitClosed(t, "task exit", task.Done())

	time.Sleep(3 * tick)
	if runs.Load() != 1 {
		t.Fatalf("no run may start after cancel, got %d", runs.Load())
	}
}
