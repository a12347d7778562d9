// Package watch ties the refresh schedulers of one displayed occurrence
// together and fans their results out to subscribers.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lifetrack/slawatch/internal/lifecycle"
	"github.com/lifetrack/slawatch/internal/metrics"
	"github.com/lifetrack/slawatch/internal/models"
	"github.com/lifetrack/slawatch/internal/scheduler"
	"github.com/lifetrack/slawatch/internal/utils"
	"github.com/lifetrack/slawatch/internal/viewguard"
)

// DefaultPhaseInterval is how often the occurrence record is re-read.
const DefaultPhaseInterval = 5 * time.Second

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("watch session closed")

// OccurrenceSource reads the authoritative occurrence record.
type OccurrenceSource interface {
	FetchOccurrence(ctx context.Context, session models.Session, occurrenceID string) (models.Occurrence, error)
}

// Sources bundles the collaborators a session polls.
type Sources struct {
	Timers      scheduler.TimerSource
	History     scheduler.HistorySource
	Occurrences OccurrenceSource
}

// Options configure a Session.
type Options struct {
	OccurrenceID string
	// Phase is used when the occurrence record cannot be read on Open.
	Phase   models.Phase
	Session models.Session
	Live    bool

	TimerInterval   time.Duration
	HistoryInterval time.Duration
	// PhaseInterval of zero disables phase polling.
	PhaseInterval time.Duration

	Guard  *viewguard.Guard
	Hub    *Hub
	Logger *slog.Logger
}

// Session watches one occurrence for one view.
type Session struct {
	sources Sources
	opts    Options
	hub     *Hub
	logger  *slog.Logger

	mu           sync.Mutex
	ctx          context.Context
	cancel       context.CancelFunc
	occurrenceID string
	machine      *lifecycle.Machine
	timer        *scheduler.TimerScheduler
	history      *scheduler.HistoryScheduler
	phaseTask    *scheduler.Task
	opened       bool
	closed       bool
}

// NewSession builds a session; nothing runs until Open.
func NewSession(sources Sources, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hub := opts.Hub
	if hub == nil {
		hub = NewHub(defaultSubscriberBuffer)
	}
	return &Session{
		sources:      sources,
		opts:         opts,
		hub:          hub,
		logger:       logger,
		occurrenceID: opts.OccurrenceID,
	}
}

// Open reads the occurrence phase and starts the schedulers it allows.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.opened {
		s.mu.Unlock()
		return nil
	}
	id := s.occurrenceID
	s.mu.Unlock()

	phase, err := s.readPhase(ctx, id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.opened {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.opened = true
	metrics.SessionOpened()

	s.machine = lifecycle.NewMachine(phase)
	s.startLocked(id, phase)
	if s.sources.Occurrences != nil && s.opts.PhaseInterval > 0 && !lifecycle.Terminal(phase) {
		s.phaseTask = scheduler.NewTask(s.opts.PhaseInterval, s.pollPhase)
		if err := s.phaseTask.Start(s.ctx); err != nil {
			s.logger.Warn("phase polling not started", slog.Any("error", err))
		}
	}
	s.logger.Info("watch session opened",
		slog.String("occurrence_id", id), slog.String("phase", string(phase)), slog.Bool("live", s.opts.Live))
	return nil
}

// Retarget points the session at another occurrence or phase. Both schedulers
// are stopped and restarted according to the new phase. It reports whether
// anything changed.
func (s *Session) Retarget(occurrenceID string, phase models.Phase) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if !s.opened {
		return false, utils.NewAppError("retarget session", "session not open", ErrClosed)
	}
	return s.retargetLocked(occurrenceID, phase), nil
}

// Subscribe registers for events of this session.
func (s *Session) Subscribe() (<-chan Event, func()) {
	return s.hub.Subscribe()
}

// OccurrenceID returns the watched occurrence.
func (s *Session) OccurrenceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.occurrenceID
}

// Phase returns the tracked phase; empty before Open.
func (s *Session) Phase() models.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine == nil {
		return ""
	}
	return s.machine.Current()
}

// Progress returns the last applied timer result.
func (s *Session) Progress() (models.ProgressResult, bool) {
	s.mu.Lock()
	timer := s.timer
	s.mu.Unlock()
	if timer == nil {
		return models.ProgressResult{}, false
	}
	return timer.Last()
}

// TimerState returns the state of the current timer scheduler.
func (s *Session) TimerState() scheduler.State {
	s.mu.Lock()
	timer := s.timer
	s.mu.Unlock()
	if timer == nil {
		return scheduler.StateIdle
	}
	return timer.State()
}

// History returns the last applied event list.
func (s *Session) History() ([]models.HistoryEvent, bool) {
	s.mu.Lock()
	history := s.history
	s.mu.Unlock()
	if history == nil {
		return nil, false
	}
	return history.Events()
}

// Close stops every scheduler and closes subscriber channels.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.stopLocked()
	if s.phaseTask != nil {
		s.phaseTask.Cancel()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.opened {
		metrics.SessionClosed()
	}
	s.hub.Close()
	s.logger.Info("watch session closed", slog.String("occurrence_id", s.occurrenceID))
}

func (s *Session) readPhase(ctx context.Context, id string) (models.Phase, error) {
	if s.sources.Occurrences == nil {
		if s.opts.Phase == "" {
			return "", utils.NewAppError("open session", "occurrence phase unknown", nil)
		}
		return s.opts.Phase, nil
	}
	if id == "" {
		return "", utils.NewAppError("open session", "occurrence id is required", nil)
	}
	occ, err := s.sources.Occurrences.FetchOccurrence(ctx, s.opts.Session, id)
	if err != nil {
		if s.opts.Phase != "" {
			s.logger.Warn("occurrence unavailable, using supplied phase",
				slog.String("occurrence_id", id), slog.Any("error", err))
			return s.opts.Phase, nil
		}
		return "", utils.NewAppError("open session", fmt.Sprintf("occurrence %s could not be read", id), err)
	}
	return occ.Phase, nil
}

func (s *Session) retargetLocked(occurrenceID string, phase models.Phase) bool {
	if occurrenceID == s.occurrenceID && s.machine != nil && s.machine.Current() == phase {
		return false
	}
	s.stopLocked()
	s.hub.Reset()
	s.occurrenceID = occurrenceID
	s.machine = lifecycle.NewMachine(phase)
	s.startLocked(occurrenceID, phase)
	s.logger.Info("watch session retargeted",
		slog.String("occurrence_id", occurrenceID), slog.String("phase", string(phase)))
	return true
}

// startLocked starts the schedulers for the current target. A cancelled
// occurrence shows no timer and its history is loaded once.
func (s *Session) startLocked(id string, phase models.Phase) {
	s.hub.Publish(Event{Kind: EventPhase, OccurrenceID: id, Phase: phase, At: time.Now()})

	s.timer = scheduler.NewTimerScheduler(s.sources.Timers, scheduler.TimerConfig{
		OccurrenceID: id,
		Phase:        phase,
		Session:      s.opts.Session,
		Interval:     s.opts.TimerInterval,
		Publish:      s.onTimer,
		Logger:       s.logger,
	})
	s.timer.Start(s.ctx)

	s.history = scheduler.NewHistoryScheduler(s.sources.History, scheduler.HistoryConfig{
		OccurrenceID: id,
		Session:      s.opts.Session,
		Live:         s.opts.Live && phase != models.PhaseCancelled,
		Interval:     s.opts.HistoryInterval,
		Publish:      s.onHistory,
		Logger:       s.logger,
	})
	s.history.Start(s.ctx)
}

func (s *Session) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.history != nil {
		s.history.Stop()
	}
}

// pollPhase re-reads the occurrence and retargets when its phase moved.
func (s *Session) pollPhase(ctx context.Context) {
	s.mu.Lock()
	id := s.occurrenceID
	closed := s.closed
	s.mu.Unlock()
	if closed || id == "" {
		return
	}

	occ, err := s.sources.Occurrences.FetchOccurrence(ctx, s.opts.Session, id)
	if err != nil {
		s.logger.Warn("phase refresh failed", slog.String("occurrence_id", id), slog.Any("error", err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || ctx.Err() != nil || s.occurrenceID != id {
		return
	}
	changed, err := s.machine.Observe(occ.Phase)
	if err != nil {
		s.logger.Warn("ignoring phase report", slog.String("occurrence_id", id), slog.Any("error", err))
		return
	}
	if changed {
		s.stopLocked()
		s.startLocked(id, occ.Phase)
		s.logger.Info("occurrence phase changed", slog.String("occurrence_id", id), slog.String("phase", string(occ.Phase)))
	}

	var last models.Snapshot
	if s.timer != nil {
		last, _ = s.timer.LastSnapshot()
	}
	if lifecycle.HardTerminal(occ.Phase, last) && s.phaseTask != nil {
		s.phaseTask.Cancel()
	}
}

// onTimer runs under the timer scheduler lock.
func (s *Session) onTimer(update scheduler.TimerUpdate) {
	if update.Err != nil {
		s.hub.Publish(Event{
			Kind:         EventError,
			OccurrenceID: update.OccurrenceID,
			Source:       SourceTimer,
			Err:          utils.DisplayMessage(update.Err),
			At:           update.At,
		})
		return
	}
	result := update.Result
	s.opts.Guard.Apply(func() {
		s.hub.Publish(Event{Kind: EventProgress, OccurrenceID: update.OccurrenceID, Progress: &result, At: update.At})
	})
	if update.State == scheduler.StateTerminated {
		s.hub.Publish(Event{Kind: EventTerminated, OccurrenceID: update.OccurrenceID, Progress: &result, At: update.At})
	}
}

// onHistory runs under the history scheduler lock.
func (s *Session) onHistory(update scheduler.HistoryUpdate) {
	if update.Err != nil {
		s.hub.Publish(Event{
			Kind:         EventError,
			OccurrenceID: update.OccurrenceID,
			Source:       SourceHistory,
			Err:          utils.DisplayMessage(update.Err),
			At:           update.At,
		})
		return
	}
	s.opts.Guard.Apply(func() {
		s.hub.Publish(Event{Kind: EventHistory, OccurrenceID: update.OccurrenceID, History: update.Events, At: update.At})
	})
}
