// Package viewguard keeps a scrolled list where the reader left it while its
// content is replaced underneath.
package viewguard

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/lifetrack/slawatch/internal/metrics"
)

// DefaultTolerance is the drift, in pixels, below which the offset is left alone.
const DefaultTolerance = 10.0

// Viewport is the scrollable surface being protected.
type Viewport interface {
	ScrollOffset() float64
	// ScrollTo jumps to offset without animation.
	ScrollTo(offset float64)
}

// FrameScheduler runs fn after the next layout pass of the host.
type FrameScheduler interface {
	RequestFrame(fn func())
}

// Guard wraps content updates of one viewport.
type Guard struct {
	view      Viewport
	frames    FrameScheduler
	tolerance float64

	mu       sync.Mutex
	restores atomic.Int64
}

// New builds a guard. A non-positive tolerance falls back to DefaultTolerance.
func New(view Viewport, frames FrameScheduler, tolerance float64) *Guard {
	if tolerance <= 0 || math.IsNaN(tolerance) {
		tolerance = DefaultTolerance
	}
	return &Guard{view: view, frames: frames, tolerance: tolerance}
}

// Apply captures the scroll offset, runs update and, on the next frame,
// restores the captured offset if the content change moved it by more than
// the tolerance. A nil guard or viewport just runs update.
func (g *Guard) Apply(update func()) {
	if g == nil || g.view == nil {
		if update != nil {
			update()
		}
		return
	}

	g.mu.Lock()
	captured := g.view.ScrollOffset()
	if update != nil {
		update()
	}
	g.mu.Unlock()

	check := func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if math.Abs(g.view.ScrollOffset()-captured) > g.tolerance {
			g.view.ScrollTo(captured)
			g.restores.Add(1)
			metrics.ScrollRestored()
		}
	}
	if g.frames == nil {
		check()
		return
	}
	g.frames.RequestFrame(check)
}

// Restores reports how many times the offset was put back.
func (g *Guard) Restores() int64 {
	if g == nil {
		return 0
	}
	return g.restores.Load()
}
