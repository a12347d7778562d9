package viewguard

import (
	"sync"
	"testing"
	"time"
)

type fakeViewport struct {
	mu       sync.Mutex
	offset   float64
	scrolled []float64
}

func (v *fakeViewport) ScrollOffset() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.offset
}

func (v *fakeViewport) ScrollTo(offset float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.offset = offset
	v.scrolled = append(v.scrolled, offset)
}

func (v *fakeViewport) set(offset float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.offset = offset
}

func TestGuardRestoresLargeDrift(t *testing.T) {
	view := &fakeViewport{offset: 500}
	frames := &ManualFrames{}
	guard := New(view, frames, 0)

	ran := false
	guard.Apply(func() {
		ran = true
		view.set(540)
	})
	if !ran {
		t.Fatalf("update was not applied")
	}
	if view.ScrollOffset() != 540 {
		t.Fatalf("restore must wait for the next frame")
	}

	if n := frames.Flush(); n != 1 {
		t.Fatalf("expected one frame callback, got %d", n)
	}
	if view.ScrollOffset() != 500 {
		t.Fatalf("expected offset restored to 500, got %v", view.ScrollOffset())
	}
	if guard.Restores() != 1 {
		t.Fatalf("expected one restore, got %d", guard.Restores())
	}
}

func TestGuardIgnoresSmallDrift(t *testing.T) {
	cases := []struct {
		name  string
		after float64
	}{
		{name: "unchanged", after: 500},
		{name: "within tolerance", after: 507},
		{name: "exactly tolerance", after: 490},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			view := &fakeViewport{offset: 500}
			frames := &ManualFrames{}
			guard := New(view, frames, DefaultTolerance)

			guard.Apply(func() { view.set(tc.after) })
			frames.Flush()

			if len(view.scrolled) != 0 {
				t.Fatalf("no scroll expected, got %v", view.scrolled)
			}
			if guard.Restores() != 0 {
				t.Fatalf("unexpected restore")
			}
		})
	}
}

func TestGuardWithoutFrameSchedulerChecksImmediately(t *testing.T) {
	view := &fakeViewport{offset: 120}
	guard := New(view, nil, 5)

	guard.Apply(func() { view.set(0) })
	if view.ScrollOffset() != 120 {
		t.Fatalf("expected immediate restore to 120, got %v", view.ScrollOffset())
	}
}

func TestNilGuardRunsUpdate(t *testing.T) {
	var guard *Guard
	ran := false
	guard.Apply(func() { ran = true })
	if !ran || guard.Restores() != 0 {
		t.Fatalf("nil guard must still apply updates")
	}
}

func TestManualFramesDefersNestedRequests(t *testing.T) {
	frames := &ManualFrames{}
	order := []string{}
	frames.RequestFrame(func() {
		order = append(order, "first")
		frames.RequestFrame(func() { order = append(order, "second") })
	})

	if frames.Flush() != 1 || len(order) != 1 {
		t.Fatalf("nested request must wait for the next flush, got %v", order)
	}
	if frames.Pending() != 1 {
		t.Fatalf("expected one pending callback")
	}
	frames.Flush()
	if len(order) != 2 || order[1] != "second" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestRemoteViewportRestoresOnRenderAck(t *testing.T) {
	var sent []float64
	view := NewRemoteViewport(func(offset float64) { sent = append(sent, offset) }, time.Minute)
	view.Report(500)

	guard := New(view, view, 0)
	guard.Apply(func() {})
	if view.Pending() != 1 {
		t.Fatalf("check must wait for the render ack, pending=%d", view.Pending())
	}

	// The host only learns about the shift once it has rendered, well after
	// any local frame would have fired.
	time.Sleep(40 * time.Millisecond)
	if len(sent) != 0 {
		t.Fatalf("no restore expected before the ack, got %v", sent)
	}

	if ran := view.Rendered(540); ran != 1 {
		t.Fatalf("expected one queued check to run, ran %d", ran)
	}
	if len(sent) != 1 || sent[0] != 500 {
		t.Fatalf("expected a restore to 500, got %v", sent)
	}
	if view.ScrollOffset() != 500 {
		t.Fatalf("mirror must follow the restore, got %v", view.ScrollOffset())
	}
	if guard.Restores() != 1 {
		t.Fatalf("expected one restore, got %d", guard.Restores())
	}
}

func TestRemoteViewportIgnoresSmallDriftOnAck(t *testing.T) {
	var sent []float64
	view := NewRemoteViewport(func(offset float64) { sent = append(sent, offset) }, time.Minute)
	view.Report(500)

	guard := New(view, view, 0)
	guard.Apply(func() {})
	view.Rendered(506)

	if len(sent) != 0 || view.ScrollOffset() != 506 {
		t.Fatalf("drift within tolerance must be left alone, sent=%v offset=%v", sent, view.ScrollOffset())
	}
}

func TestRemoteViewportDropsUnacknowledgedChecks(t *testing.T) {
	var sent []float64
	view := NewRemoteViewport(func(offset float64) { sent = append(sent, offset) }, time.Second)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	view.now = func() time.Time { return now }
	view.Report(500)

	guard := New(view, view, 0)
	guard.Apply(func() {})

	now = now.Add(2 * time.Second)
	guard.Apply(func() {})
	if view.Pending() != 1 {
		t.Fatalf("expired check must be pruned, pending=%d", view.Pending())
	}

	now = now.Add(2 * time.Second)
	if ran := view.Rendered(900); ran != 0 {
		t.Fatalf("stale checks must not run, ran %d", ran)
	}
	if len(sent) != 0 || view.Pending() != 0 {
		t.Fatalf("unexpected restore %v, pending=%d", sent, view.Pending())
	}
}
