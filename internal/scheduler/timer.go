package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lifetrack/slawatch/internal/lifecycle"
	"github.com/lifetrack/slawatch/internal/metrics"
	"github.com/lifetrack/slawatch/internal/models"
	"github.com/lifetrack/slawatch/internal/progress"
	"github.com/lifetrack/slawatch/internal/utils"
)

// DefaultTimerInterval is the reference cadence for SLA timer refreshes.
const DefaultTimerInterval = 2 * time.Second

// TimerSource reads the SLA timer of an occurrence.
type TimerSource interface {
	FetchTimer(ctx context.Context, session models.Session, occurrenceID string) (models.Snapshot, error)
}

// TimerUpdate is emitted after every applied fetch.
type TimerUpdate struct {
	OccurrenceID string
	State        State
	Snapshot     models.Snapshot
	Result       models.ProgressResult
	Err          error
	At           time.Time
}

// TimerConfig parameterises a TimerScheduler.
type TimerConfig struct {
	OccurrenceID string
	Phase        models.Phase
	Session      models.Session
	Interval     time.Duration
	Publish      func(TimerUpdate)
	Logger       *slog.Logger
}

// TimerScheduler polls one occurrence's SLA timer: IDLE → POLLING → TERMINATED.
// Publish is called with the scheduler lock held and must not call back into
// the scheduler.
type TimerScheduler struct {
	source  TimerSource
	cfg     TimerConfig
	logger  *slog.Logger
	latency *utils.LatencyTracker

	mu       sync.Mutex
	state    State
	cancel   context.CancelFunc
	task     *Task
	last     *models.ProgressResult
	lastSnap *models.Snapshot
	lastErr  error
	stats    Stats
	done     chan struct{}
	doneOnce sync.Once
	counted  bool
}

// NewTimerScheduler builds a scheduler in IDLE; nothing is fetched until Start.
func NewTimerScheduler(source TimerSource, cfg TimerConfig) *TimerScheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultTimerInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TimerScheduler{
		source:  source,
		cfg:     cfg,
		logger:  logger.With(slog.String("occurrence_id", cfg.OccurrenceID), slog.String("scheduler", metrics.KindTimer)),
		latency: utils.NewLatencyTracker(128),
		state:   StateIdle,
		done:    make(chan struct{}),
	}
}

// Start enters POLLING when the phase shows a timer, performs one immediate
// fetch and only creates the repeating task if that first snapshot is not
// already terminal. Ineligible phases stay IDLE.
func (s *TimerScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle || s.cancel != nil {
		return
	}
	if s.source == nil || s.cfg.OccurrenceID == "" || !lifecycle.TimerEligible(s.cfg.Phase) {
		s.logger.Debug("timer not shown for phase", slog.String("phase", string(s.cfg.Phase)))
		s.finishLocked()
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = StatePolling
	s.counted = true
	metrics.SchedulerStarted(metrics.KindTimer)
	go s.run(runCtx)
}

// Stop tears the scheduler down from any state. No update is published after
// Stop returns.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateStopped {
		return
	}
	if s.state == StatePolling {
		s.releaseLocked()
	}
	s.state = StateStopped
	if s.cancel != nil {
		s.cancel()
	}
	if s.task != nil {
		s.task.Cancel()
	}
	s.finishLocked()
}

// State returns the current lifecycle state.
func (s *TimerScheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Last returns the most recently applied result, if any.
func (s *TimerScheduler) Last() (models.ProgressResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return models.ProgressResult{}, false
	}
	return *s.last, true
}

// LastSnapshot returns the most recently applied raw snapshot, if any.
func (s *TimerScheduler) LastSnapshot() (models.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSnap == nil {
		return models.Snapshot{}, false
	}
	return *s.lastSnap, true
}

// LastError returns the display-only error of the latest fetch, nil after a success.
func (s *TimerScheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Stats returns fetch counters.
func (s *TimerScheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// LatencyP95 reports the p95 fetch latency observed by this scheduler.
func (s *TimerScheduler) LatencyP95() time.Duration {
	return s.latency.Percentile(95)
}

// Done is closed when the scheduler leaves POLLING for good (or never entered it).
func (s *TimerScheduler) Done() <-chan struct{} {
	return s.done
}

func (s *TimerScheduler) run(ctx context.Context) {
	// The first fetch decides whether a repeating task exists at all, so a
	// terminal occurrence never gets a single extra tick.
	if stop := s.poll(ctx); stop {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePolling || ctx.Err() != nil {
		return
	}
	s.task = NewTask(s.cfg.Interval, func(taskCtx context.Context) {
		s.poll(taskCtx)
	})
	if err := s.task.Start(ctx); err != nil {
		s.logger.Warn("timer task not started", slog.Any("error", err))
	}
}

// poll fetches and applies one snapshot. It reports true when polling must end.
func (s *TimerScheduler) poll(ctx context.Context) bool {
	if !s.polling() {
		return true
	}

	s.mu.Lock()
	s.stats.Fetches++
	s.mu.Unlock()

	start := time.Now()
	snap, err := s.source.FetchTimer(ctx, s.cfg.Session, s.cfg.OccurrenceID)
	elapsed := time.Since(start)
	s.latency.Observe(elapsed)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePolling || ctx.Err() != nil {
		metrics.ObserveFetch(metrics.KindTimer, metrics.OutcomeDiscarded, elapsed)
		return true
	}

	now := time.Now()
	if err != nil {
		metrics.ObserveFetch(metrics.KindTimer, metrics.OutcomeError, elapsed)
		s.stats.Errors++
		s.lastErr = err
		s.logger.Warn("timer fetch failed", slog.Any("error", err))
		s.publishLocked(TimerUpdate{OccurrenceID: s.cfg.OccurrenceID, State: s.state, Err: err, At: now})
		return false
	}
	metrics.ObserveFetch(metrics.KindTimer, metrics.OutcomeSuccess, elapsed)

	snap = snap.Normalize()
	if snap.OccurrenceID == "" {
		snap.OccurrenceID = s.cfg.OccurrenceID
	}
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = now
	}
	result := progress.Calculate(snap)
	s.stats.Applied++
	s.last = &result
	s.lastSnap = &snap
	s.lastErr = nil

	if snap.Terminal() {
		s.releaseLocked()
		s.state = StateTerminated
		if s.task != nil {
			s.task.Cancel()
		}
		if s.cancel != nil {
			s.cancel()
		}
		metrics.TimerTerminated()
		s.logger.Info("unit returned to base, timer polling finished",
			slog.Int("fetches", s.stats.Fetches))
		s.publishLocked(TimerUpdate{OccurrenceID: s.cfg.OccurrenceID, State: s.state, Snapshot: snap, Result: result, At: now})
		s.finishLocked()
		return true
	}

	s.publishLocked(TimerUpdate{OccurrenceID: s.cfg.OccurrenceID, State: s.state, Snapshot: snap, Result: result, At: now})
	return false
}

func (s *TimerScheduler) polling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StatePolling
}

func (s *TimerScheduler) publishLocked(update TimerUpdate) {
	if s.cfg.Publish != nil {
		s.cfg.Publish(update)
	}
}

func (s *TimerScheduler) releaseLocked() {
	if s.counted {
		metrics.SchedulerStopped(metrics.KindTimer)
		s.counted = false
	}
}

func (s *TimerScheduler) finishLocked() {
	s.doneOnce.Do(func() { close(s.done) })
}
