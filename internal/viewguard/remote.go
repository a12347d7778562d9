package viewguard

import (
	"sync"
	"time"
)

// DefaultAckTimeout bounds how long a queued check waits for the host to
// acknowledge the render it belongs to.
const DefaultAckTimeout = 2 * time.Second

// RemoteViewport mirrors the scroll offset of a viewport rendered elsewhere,
// such as a browser on the other end of a websocket. The host reports offsets
// as they change and ScrollTo forwards restores back to it.
//
// It is also the FrameScheduler for its own guard: the host's next layout
// pass is only known once it acknowledges a render through Rendered, so
// queued checks run then rather than on a local clock. Checks older than the
// ack timeout are dropped unrun.
type RemoteViewport struct {
	mu         sync.Mutex
	offset     float64
	send       func(offset float64)
	ackTimeout time.Duration
	pending    []remoteFrame
	now        func() time.Time
}

type remoteFrame struct {
	fn     func()
	queued time.Time
}

// NewRemoteViewport builds a viewport whose restores are delivered through
// send. A non-positive ackTimeout falls back to DefaultAckTimeout.
func NewRemoteViewport(send func(offset float64), ackTimeout time.Duration) *RemoteViewport {
	if ackTimeout <= 0 {
		ackTimeout = DefaultAckTimeout
	}
	return &RemoteViewport{send: send, ackTimeout: ackTimeout, now: time.Now}
}

// Report records the offset last seen by the host.
func (v *RemoteViewport) Report(offset float64) {
	v.mu.Lock()
	v.offset = offset
	v.mu.Unlock()
}

// Rendered records the offset the host settled on after applying content and
// runs the checks queued before it. It returns how many checks ran.
func (v *RemoteViewport) Rendered(offset float64) int {
	v.mu.Lock()
	v.offset = offset
	queue := v.liveLocked()
	v.pending = nil
	v.mu.Unlock()

	for _, frame := range queue {
		frame.fn()
	}
	return len(queue)
}

// RequestFrame queues fn until the host acknowledges its next render.
func (v *RemoteViewport) RequestFrame(fn func()) {
	if fn == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pending = append(v.liveLocked(), remoteFrame{fn: fn, queued: v.now()})
}

// Pending reports the number of checks waiting for an acknowledgement.
func (v *RemoteViewport) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.pending)
}

// ScrollOffset returns the last reported offset.
func (v *RemoteViewport) ScrollOffset() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.offset
}

// ScrollTo records offset and asks the host to jump there.
func (v *RemoteViewport) ScrollTo(offset float64) {
	v.mu.Lock()
	v.offset = offset
	send := v.send
	v.mu.Unlock()
	if send != nil {
		send(offset)
	}
}

func (v *RemoteViewport) liveLocked() []remoteFrame {
	cutoff := v.now().Add(-v.ackTimeout)
	live := v.pending[:0]
	for _, frame := range v.pending {
		if frame.queued.After(cutoff) {
			live = append(live, frame)
		}
	}
	return live
}
