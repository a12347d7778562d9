package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lifetrack/slawatch/internal/metrics"
	"github.com/lifetrack/slawatch/internal/models"
)

// DefaultHistoryInterval is the reference cadence for history refreshes.
const DefaultHistoryInterval = 3 * time.Second

// HistorySource reads the audit history of an occurrence, oldest first.
type HistorySource interface {
	FetchHistory(ctx context.Context, session models.Session, occurrenceID string) ([]models.HistoryEvent, error)
}

// HistoryUpdate is emitted after every applied history fetch.
type HistoryUpdate struct {
	OccurrenceID string
	State        State
	Events       []models.HistoryEvent
	Err          error
	At           time.Time
}

// HistoryConfig parameterises a HistoryScheduler. Live is decided by the
// caller; the scheduler never stops itself based on the events it reads.
type HistoryConfig struct {
	OccurrenceID string
	Session      models.Session
	Live         bool
	Interval     time.Duration
	Publish      func(HistoryUpdate)
	Logger       *slog.Logger
}

// HistoryScheduler keeps an occurrence's event list fresh while live updates
// are requested. Publish is called with the scheduler lock held.
type HistoryScheduler struct {
	source HistorySource
	cfg    HistoryConfig
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	cancel   context.CancelFunc
	task     *Task
	events   []models.HistoryEvent
	loaded   bool
	lastErr  error
	stats    Stats
	done     chan struct{}
	doneOnce sync.Once
	counted  bool
}

// NewHistoryScheduler builds an idle scheduler.
func NewHistoryScheduler(source HistorySource, cfg HistoryConfig) *HistoryScheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultHistoryInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryScheduler{
		source: source,
		cfg:    cfg,
		logger: logger.With(slog.String("occurrence_id", cfg.OccurrenceID), slog.String("scheduler", metrics.KindHistory)),
		state:  StateIdle,
		done:   make(chan struct{}),
	}
}

// Start loads the history once and, when Live, keeps refreshing until Stop.
func (s *HistoryScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle || s.cancel != nil {
		return
	}
	if s.source == nil || s.cfg.OccurrenceID == "" {
		s.finishLocked()
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = StatePolling
	s.counted = true
	metrics.SchedulerStarted(metrics.KindHistory)
	go s.run(runCtx)
}

// Stop tears the scheduler down; nothing is published after it returns.
func (s *HistoryScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateStopped {
		return
	}
	s.releaseLocked()
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
func (s *HistoryScheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Events returns a copy of the latest applied event list.
func (s *HistoryScheduler) Events() ([]models.HistoryEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.HistoryEvent(nil), s.events...), s.loaded
}

// LastError returns the display-only error of the latest fetch.
func (s *HistoryScheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Stats returns fetch counters.
func (s *HistoryScheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Done is closed when the scheduler will not fetch again.
func (s *HistoryScheduler) Done() <-chan struct{} {
	return s.done
}

func (s *HistoryScheduler) run(ctx context.Context) {
	s.poll(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePolling || ctx.Err() != nil {
		return
	}
	if !s.cfg.Live {
		s.releaseLocked()
		s.state = StateSettled
		s.finishLocked()
		return
	}
	s.task = NewTask(s.cfg.Interval, s.poll)
	if err := s.task.Start(ctx); err != nil {
		s.logger.Warn("history task not started", slog.Any("error", err))
	}
}

func (s *HistoryScheduler) poll(ctx context.Context) {
	s.mu.Lock()
	if s.state != StatePolling {
		s.mu.Unlock()
		return
	}
	s.stats.Fetches++
	s.mu.Unlock()

	start := time.Now()
	events, err := s.source.FetchHistory(ctx, s.cfg.Session, s.cfg.OccurrenceID)
	elapsed := time.Since(start)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePolling || ctx.Err() != nil {
		metrics.ObserveFetch(metrics.KindHistory, metrics.OutcomeDiscarded, elapsed)
		return
	}

	now := time.Now()
	if err != nil {
		metrics.ObserveFetch(metrics.KindHistory, metrics.OutcomeError, elapsed)
		s.stats.Errors++
		s.lastErr = err
		s.logger.Warn("history fetch failed", slog.Any("error", err))
		s.publishLocked(HistoryUpdate{OccurrenceID: s.cfg.OccurrenceID, State: s.state, Err: err, At: now})
		return
	}
	metrics.ObserveFetch(metrics.KindHistory, metrics.OutcomeSuccess, elapsed)

	s.stats.Applied++
	s.events = append([]models.HistoryEvent(nil), events...)
	s.loaded = true
	s.lastErr = nil
	s.publishLocked(HistoryUpdate{
		OccurrenceID: s.cfg.OccurrenceID,
		State:        s.state,
		Events:       append([]models.HistoryEvent(nil), events...),
		At:           now,
	})
}

func (s *HistoryScheduler) publishLocked(update HistoryUpdate) {
	if s.cfg.Publish != nil {
		s.cfg.Publish(update)
	}
}

func (s *HistoryScheduler) releaseLocked() {
	if s.counted {
		metrics.SchedulerStopped(metrics.KindHistory)
		s.counted = false
	}
}

func (s *HistoryScheduler) finishLocked() {
	s.doneOnce.Do(func() { close(s.done) })
}
