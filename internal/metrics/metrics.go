package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

/*
Metrics Types:

- CounterVec: A counter with labels, e.g. lifecycle events per type or
  rejected actions per reason.

- GaugeVec / Gauge: A value that goes up and down, like open sessions
  and connected participants per role.

- Histogram: The distribution of a value such as how long persisting an
  ended poll takes, so percentiles are visible and not only the average.

Registration:
Every constructor takes the registerer to use. Servers pass
prometheus.DefaultRegisterer; tests pass a fresh prometheus.NewRegistry()
so constructing metrics twice never panics on duplicate registration.
*/

type ProcessorMetrics struct {
	EventsProcessed *prometheus.CounterVec
	EventsDuplicate *prometheus.CounterVec
	ProcessingTime  *prometheus.HistogramVec
}

func NewProcessorMetrics(reg prometheus.Registerer, namespace, subsystem string) *ProcessorMetrics {
	f := promauto.With(reg)
	return &ProcessorMetrics{
		EventsProcessed: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "events_processed_total",
				Help:      "Total number of poll lifecycle events processed",
			},
			[]string{"type"},
		),
		EventsDuplicate: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "events_duplicate_total",
				Help:      "Total number of redelivered events dropped",
			},
			[]string{"type"},
		),
		ProcessingTime: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "event_processing_time_seconds",
				Help:      "Histogram of event processing times",
				Buckets:   prometheus.LinearBuckets(0.001, 0.001, 10), // 10 buckets, 1ms to 10ms
			},
			[]string{"type"},
		),
	}
}

type SessionMetrics struct {
	ActiveSessions   prometheus.Gauge
	Connections      *prometheus.GaugeVec
	PollsStarted     *prometheus.CounterVec
	PollsEnded       *prometheus.CounterVec
	Answers          *prometheus.CounterVec
	Rejections       *prometheus.CounterVec
	PersistDuration  prometheus.Histogram
	AutoEndFailures  prometheus.Counter
	CoalescedEffects prometheus.Counter
}

func NewSessionMetrics(reg prometheus.Registerer, namespace string) *SessionMetrics {
	f := promauto.With(reg)
	return &SessionMetrics{
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of running group sessions",
		}),
		Connections: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "connections",
				Help:      "Connected participants by role",
			},
			[]string{"role"},
		),
		PollsStarted: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "polls_started_total",
				Help:      "Total number of polls started",
			},
			[]string{"poll_type"},
		),
		PollsEnded: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "polls_ended_total",
				Help:      "Total number of polls ended, by outcome",
			},
			[]string{"outcome"},
		),
		Answers: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "answers_total",
				Help:      "Total number of accepted answers and upvotes",
			},
			[]string{"kind"},
		),
		Rejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "rejections_total",
				Help:      "Total number of rejected client actions",
			},
			[]string{"reason"},
		),
		PersistDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "persist_duration_seconds",
			Help:      "Time spent persisting ended polls",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
		}),
		AutoEndFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "auto_end_failures_total",
			Help:      "Failed attempts to persist the live poll of a group everyone left",
		}),
		CoalescedEffects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "side_effects_coalesced_total",
			Help:      "Tally mirrors replaced by a newer one before the session worker ran them",
		}),
	}
}
