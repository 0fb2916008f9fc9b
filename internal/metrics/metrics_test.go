package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workoutwise/formcheck/internal/exercise"
	"github.com/workoutwise/formcheck/internal/session"
)

// value finds the sample of a gathered family whose labels include all of
// the given pairs.
func value(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			if !hasLabels(metric, labels) {
				continue
			}
			switch {
			case metric.Counter != nil:
				return metric.GetCounter().GetValue()
			case metric.Gauge != nil:
				return metric.GetGauge().GetValue()
			case metric.Histogram != nil:
				return float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	found := 0
	for _, lp := range m.GetLabel() {
		if v, ok := want[lp.GetName()]; ok && v == lp.GetValue() {
			found++
		}
	}
	return found == len(want)
}

func TestObserveFrame(t *testing.T) {
	m := New()
	m.ObserveFrame(exercise.Plank, session.FrameResult{Outcome: session.OutcomeObserved}, time.Millisecond)
	m.ObserveFrame(exercise.Plank, session.FrameResult{Outcome: session.OutcomeObserved}, time.Millisecond)
	m.ObserveFrame(exercise.Squat, session.FrameResult{Outcome: session.OutcomeNoPose}, time.Millisecond)

	assert.Equal(t, 2.0, value(t, m, "formcheck_frames_total", map[string]string{"exercise": "plank", "outcome": "observed"}))
	assert.Equal(t, 1.0, value(t, m, "formcheck_frames_total", map[string]string{"exercise": "squat", "outcome": "no_pose"}))
	assert.Equal(t, 2.0, value(t, m, "formcheck_frame_duration_seconds", map[string]string{"exercise": "plank"}))
}

func TestSessionLifecycle(t *testing.T) {
	m := New()
	m.SessionStarted(exercise.Plank, session.Live)
	m.SessionStarted(exercise.Squat, session.Batch)
	assert.Equal(t, int64(1), m.ActiveSessions.Load(), "batch sessions are never active")

	m.SessionFinished(session.Summary{
		Exercise:         exercise.Plank,
		Mode:             session.Live,
		CorrectSeconds:   6,
		IncorrectSeconds: 4,
	})
	m.SessionFinished(session.Summary{
		Exercise:    exercise.Squat,
		Mode:        session.Batch,
		RepCount:    3,
		Diagnostics: session.Diagnostics{PlacementErrors: 2},
	})

	assert.Equal(t, int64(0), m.ActiveSessions.Load())
	assert.Equal(t, 0.0, value(t, m, "formcheck_active_sessions", nil))
	assert.Equal(t, 1.0, value(t, m, "formcheck_sessions_total", map[string]string{"exercise": "squat", "mode": "batch", "event": "finished"}))
	assert.Equal(t, 3.0, value(t, m, "formcheck_reps_total", map[string]string{"exercise": "squat"}))
	assert.Equal(t, 6.0, value(t, m, "formcheck_form_seconds_total", map[string]string{"exercise": "plank", "category": "correct"}))
	assert.Equal(t, 4.0, value(t, m, "formcheck_form_seconds_total", map[string]string{"exercise": "plank", "category": "incorrect"}))
	assert.Equal(t, 2.0, value(t, m, "formcheck_placement_errors_total", map[string]string{"exercise": "squat"}))
}

func TestHandler(t *testing.T) {
	m := New()
	m.StatusPublished.Add(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "formcheck_status_published_total 3"), string(body))
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.SessionStarted(exercise.Plank, session.Live)
	assert.Equal(t, 0.0, value(t, b, "formcheck_active_sessions", nil))
}
