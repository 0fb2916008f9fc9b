// Package metrics exposes form-analysis counters to Prometheus.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/workoutwise/formcheck/internal/exercise"
	"github.com/workoutwise/formcheck/internal/session"
)

// Metrics holds all application metrics on a private registry.
type Metrics struct {
	// Live session tracking
	ActiveSessions atomic.Int64

	// Publisher counters
	StatusPublished     atomic.Uint64
	StatusPublishErrors atomic.Uint64

	frames         *prometheus.CounterVec
	frameLatency   *prometheus.HistogramVec
	sessions       *prometheus.CounterVec
	reps           *prometheus.CounterVec
	formSeconds    *prometheus.CounterVec
	placementFails *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formcheck_frames_total",
			Help: "Frames processed, by exercise and outcome",
		}, []string{"exercise", "outcome"}),
		frameLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formcheck_frame_duration_seconds",
			Help:    "Time spent running one frame through the pipeline",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}, []string{"exercise"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formcheck_sessions_total",
			Help: "Sessions by exercise, mode and lifecycle event",
		}, []string{"exercise", "mode", "event"}),
		reps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formcheck_reps_total",
			Help: "Repetitions counted in finished sessions",
		}, []string{"exercise"}),
		formSeconds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formcheck_form_seconds_total",
			Help: "Seconds spent in each form category in finished sessions",
		}, []string{"exercise", "category"}),
		placementFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formcheck_placement_errors_total",
			Help: "Frames whose placement could not be graded",
		}, []string{"exercise"}),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	m.registry.MustRegister(m.frames, m.frameLatency, m.sessions, m.reps, m.formSeconds, m.placementFails)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "formcheck_active_sessions",
			Help: "Number of open live sessions",
		},
		func() float64 { return float64(m.ActiveSessions.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "formcheck_status_published_total",
			Help: "Live status messages handed to the publisher",
		},
		func() float64 { return float64(m.StatusPublished.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "formcheck_status_publish_errors_total",
			Help: "Live status messages the publisher failed to deliver",
		},
		func() float64 { return float64(m.StatusPublishErrors.Load()) },
	))
}

// ObserveFrame counts one processed frame.
func (m *Metrics) ObserveFrame(kind exercise.Kind, res session.FrameResult, took time.Duration) {
	m.frames.WithLabelValues(string(kind), string(res.Outcome)).Inc()
	m.frameLatency.WithLabelValues(string(kind)).Observe(took.Seconds())
}

// SessionStarted counts a new session. Live sessions also count as active
// until SessionFinished.
func (m *Metrics) SessionStarted(kind exercise.Kind, mode session.Mode) {
	m.sessions.WithLabelValues(string(kind), string(mode), "started").Inc()
	if mode == session.Live {
		m.ActiveSessions.Add(1)
	}
}

// SessionFinished folds a final summary into the totals.
func (m *Metrics) SessionFinished(sum session.Summary) {
	kind := string(sum.Exercise)
	m.sessions.WithLabelValues(kind, string(sum.Mode), "finished").Inc()
	if sum.Mode == session.Live {
		m.ActiveSessions.Add(-1)
	}
	m.reps.WithLabelValues(kind).Add(float64(sum.RepCount))
	m.formSeconds.WithLabelValues(kind, "correct").Add(float64(sum.CorrectSeconds))
	m.formSeconds.WithLabelValues(kind, "incorrect").Add(float64(sum.IncorrectSeconds))
	m.placementFails.WithLabelValues(kind).Add(float64(sum.Diagnostics.PlacementErrors))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
