package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels fetches that returned data.
	OutcomeSuccess = "success"
	// OutcomeError labels fetches that failed (transport or upstream status).
	OutcomeError = "error"
	// OutcomeDiscarded labels fetches that completed after teardown.
	OutcomeDiscarded = "discarded"

	// KindTimer labels SLA timer fetches.
	KindTimer = "timer"
	// KindHistory labels history fetches.
	KindHistory = "history"
	// KindOccurrence labels occurrence phase fetches.
	KindOccurrence = "occurrence"
)

var (
	fetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slawatch",
			Name:      "fetches_total",
			Help:      "Collaborator fetches issued by refresh schedulers, partitioned by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	fetchDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "slawatch",
			Name:      "fetch_seconds",
			Help:      "Collaborator fetch latency in seconds.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"kind"},
	)

	activeSchedulers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "slawatch",
			Name:      "active_schedulers",
			Help:      "Schedulers currently polling, by kind.",
		},
		[]string{"kind"},
	)

	terminationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slawatch",
			Name:      "timer_terminations_total",
			Help:      "Timer schedulers that stopped because the unit returned to base.",
		},
	)

	scrollRestoresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slawatch",
			Name:      "scroll_restores_total",
			Help:      "Scroll offsets restored after a refresh shifted the layout.",
		},
	)

	sessionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "slawatch",
			Name:      "sessions_open",
			Help:      "Occurrence view sessions currently open.",
		},
	)
)

// Register attaches slawatch collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		fetchesTotal,
		fetchDurationSeconds,
		activeSchedulers,
		terminationsTotal,
		scrollRestoresTotal,
		sessionsOpen,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveFetch records one collaborator fetch.
func ObserveFetch(kind, outcome string, duration time.Duration) {
	switch outcome {
	case OutcomeError, OutcomeDiscarded:
	default:
		outcome = OutcomeSuccess
	}
	fetchesTotal.WithLabelValues(kind, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	fetchDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// SchedulerStarted increments the active gauge for kind.
func SchedulerStarted(kind string) {
	activeSchedulers.WithLabelValues(kind).Inc()
}

// SchedulerStopped decrements the active gauge for kind.
func SchedulerStopped(kind string) {
	activeSchedulers.WithLabelValues(kind).Dec()
}

// TimerTerminated counts a timer scheduler reaching its terminal state.
func TimerTerminated() {
	terminationsTotal.Inc()
}

// ScrollRestored counts one view-guard restore.
func ScrollRestored() {
	scrollRestoresTotal.Inc()
}

// SessionOpened tracks an opened occurrence view session.
func SessionOpened() {
	sessionsOpen.Inc()
}

// SessionClosed tracks a closed occurrence view session.
func SessionClosed() {
	sessionsOpen.Dec()
}
