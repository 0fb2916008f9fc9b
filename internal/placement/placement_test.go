package placement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workoutwise/formcheck/internal/config"
	"github.com/workoutwise/formcheck/internal/exercise"
	"github.com/workoutwise/formcheck/internal/pose"
)

// stance builds a frontal pose with the given shoulder, foot and knee widths
// centred on x = 0.5.
func stance(shoulder, foot, knee float64) []pose.Landmark {
	lms := make([]pose.Landmark, pose.NumLandmarks)
	for i := range lms {
		lms[i] = pose.Landmark{X: 0.5, Y: 0.5, Visibility: 0.99}
	}
	set := func(l, r pose.LandmarkID, width, y float64) {
		lms[l] = pose.Landmark{X: 0.5 + width/2, Y: y, Visibility: 0.99}
		lms[r] = pose.Landmark{X: 0.5 - width/2, Y: y, Visibility: 0.99}
	}
	set(pose.LeftShoulder, pose.RightShoulder, shoulder, 0.3)
	set(pose.LeftKnee, pose.RightKnee, knee, 0.7)
	set(pose.LeftFootIndex, pose.RightFootIndex, foot, 0.95)
	return lms
}

func newEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	e, err := NewEvaluator(DefaultThresholds())
	require.NoError(t, err)
	return e
}

func TestEvaluate_FootRatio(t *testing.T) {
	e := newEvaluator(t)

	tests := []struct {
		name      string
		foot      float64
		want      Placement
		wantRatio float64
	}{
		{"within band", 0.5, Correct, 2.5},
		{"below band", 0.1, TooNarrow, 0.5},
		{"above band", 0.6, TooWide, 3.0},
		{"lower edge inclusive", 0.24, Correct, 1.2},
		{"rounds into band", 0.566, Correct, 2.8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(stance(0.2, tt.foot, tt.foot*0.8), exercise.StageUp)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Foot)
			assert.InDelta(t, tt.wantRatio, got.FootRatio, 1e-9)
		})
	}
}

func TestEvaluate_KneeByStage(t *testing.T) {
	e := newEvaluator(t)

	tests := []struct {
		name  string
		knee  float64
		stage exercise.SquatStage
		want  Placement
	}{
		{"up accepts 0.5", 0.2, exercise.StageUp, Correct},
		{"down rejects 0.5", 0.2, exercise.StageDown, TooNarrow},
		{"down accepts 1.1", 0.44, exercise.StageDown, Correct},
		{"up rejects 1.1", 0.44, exercise.StageUp, TooWide},
		{"middle band", 0.28, exercise.StageMiddle, Correct},
		{"no stage uses fallback", 0.04, exercise.StageNone, Correct},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// foot width 0.4 against shoulder 0.2
			got, err := e.Evaluate(stance(0.2, 0.4, tt.knee), tt.stage)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Knee)
		})
	}
}

func TestEvaluate_VisibilityGate(t *testing.T) {
	e := newEvaluator(t)
	for _, id := range []pose.LandmarkID{pose.LeftFootIndex, pose.RightFootIndex, pose.LeftKnee, pose.RightKnee} {
		t.Run(id.String(), func(t *testing.T) {
			lms := stance(0.2, 0.5, 0.4)
			lms[id].Visibility = 0.59
			got, err := e.Evaluate(lms, exercise.StageDown)
			require.NoError(t, err)
			assert.Equal(t, UnknownSample, got)
		})
	}

	// Shoulder visibility is not gated.
	lms := stance(0.2, 0.5, 0.4)
	lms[pose.LeftShoulder].Visibility = 0.1
	got, err := e.Evaluate(lms, exercise.StageDown)
	require.NoError(t, err)
	assert.Equal(t, Correct, got.Foot)
}

func TestEvaluate_IgnoresDepth(t *testing.T) {
	e := newEvaluator(t)
	lms := stance(0.2, 0.5, 0.4)
	lms[pose.LeftFootIndex].Z = 3
	got, err := e.Evaluate(lms, exercise.StageUp)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, got.FootRatio, 1e-9)
}

func TestEvaluate_Errors(t *testing.T) {
	e := newEvaluator(t)

	_, err := e.Evaluate(stance(0, 0.5, 0.4), exercise.StageUp)
	assert.ErrorIs(t, err, ErrDegenerateGeometry)

	_, err = e.Evaluate(stance(0.2, 0, 0.4), exercise.StageUp)
	assert.ErrorIs(t, err, ErrDegenerateGeometry)

	_, err = e.Evaluate(make([]pose.Landmark, 10), exercise.StageUp)
	assert.ErrorIs(t, err, pose.ErrMalformedLandmarks)
}

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())

	tests := []struct {
		name   string
		mutate func(*Thresholds)
	}{
		{"inverted foot band", func(th *Thresholds) { th.FootShoulder = Band{Min: 3, Max: 1} }},
		{"negative fallback", func(th *Thresholds) { th.KneeFallback = Band{Min: -1, Max: 1} }},
		{"unknown stage key", func(th *Thresholds) { th.KneeFoot["bottom"] = Band{Min: 0, Max: 1} }},
		{"empty stage key", func(th *Thresholds) { th.KneeFoot[""] = Band{Min: 0, Max: 1} }},
		{"visibility above one", func(th *Thresholds) { th.VisibilityFloor = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := DefaultThresholds()
			tt.mutate(&th)
			_, err := NewEvaluator(th)
			assert.ErrorIs(t, err, ErrInvalidThresholds)
		})
	}
}

func TestThresholdsFromConfig(t *testing.T) {
	th, err := ThresholdsFromConfig(config.EmptyFormConfig())
	require.NoError(t, err)
	assert.Equal(t, DefaultThresholds(), th)

	cfg := config.EmptyFormConfig()
	cfg.KneeFootRatio = map[string][2]float64{"down": {0.6, 1.3}}
	th, err = ThresholdsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, Band{Min: 0.6, Max: 1.3}, th.KneeBand(exercise.StageDown))
	assert.Equal(t, Band{Min: 0.5, Max: 1.0}, th.KneeBand(exercise.StageUp))
}
