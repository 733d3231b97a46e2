package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "assessment"

// Metrics holds the Prometheus collectors of the exam engine.
type Metrics struct {
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
	SessionsStarted    prometheus.Counter
	SessionTransitions *prometheus.CounterVec
	SelectionShortfall prometheus.Counter
	CheatEvents        *prometheus.CounterVec
	AnswersRecorded    *prometheus.CounterVec
	ScoringRuns        *prometheus.CounterVec
	ScoringDuration    prometheus.Histogram
	WorkerFlushes      *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "started_total",
			Help:      "Exam sessions created",
		}),
		SessionTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "transitions_total",
				Help:      "Sessions leaving in_progress, by target status and reason",
			},
			[]string{"status", "reason"},
		),
		SelectionShortfall: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "selector",
			Name:      "shortfall_total",
			Help:      "Sessions created with fewer questions than the template asks for",
		}),
		CheatEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "anticheat",
				Name:      "events_total",
				Help:      "Reported cheat events by type",
			},
			[]string{"type"},
		),
		AnswersRecorded: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "answer",
				Name:      "recorded_total",
				Help:      "Answers recorded by question type",
			},
			[]string{"type"},
		),
		ScoringRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scoring",
				Name:      "runs_total",
				Help:      "Scoring runs by outcome",
			},
			[]string{"outcome"},
		),
		ScoringDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "duration_seconds",
			Help:      "Time spent computing and persisting a result",
			Buckets:   prometheus.DefBuckets,
		}),
		WorkerFlushes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "worker",
				Name:      "flushes_total",
				Help:      "Background worker batch flushes by worker and outcome",
			},
			[]string{"worker", "outcome"},
		),
	}
}
