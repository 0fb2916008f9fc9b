// Package placement grades squat foot and knee width from landmark geometry.
package placement

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/workoutwise/formcheck/internal/config"
	"github.com/workoutwise/formcheck/internal/exercise"
	"github.com/workoutwise/formcheck/internal/numeric"
	"github.com/workoutwise/formcheck/internal/pose"
)

// Placement grades one width ratio.
type Placement string

const (
	Correct   Placement = "correct"
	TooNarrow Placement = "too-narrow"
	TooWide   Placement = "too-wide"
	Unknown   Placement = "unknown"
)

// ratioDecimals is the precision ratios are rounded to before grading.
const ratioDecimals = 1

// DefaultVisibilityFloor is the minimum landmark visibility for a frame to be
// graded at all.
const DefaultVisibilityFloor = 0.6

// ErrDegenerateGeometry is returned when a reference width is zero, which
// makes the ratio undefined.
var ErrDegenerateGeometry = errors.New("degenerate landmark geometry")

// ErrInvalidThresholds is returned by Thresholds.Validate.
var ErrInvalidThresholds = errors.New("invalid placement thresholds")

// Band is an inclusive acceptable ratio range.
type Band struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Grade places ratio relative to the band.
func (b Band) Grade(ratio float64) Placement {
	switch {
	case ratio < b.Min:
		return TooNarrow
	case ratio > b.Max:
		return TooWide
	default:
		return Correct
	}
}

func (b Band) validate(name string) error {
	if math.IsNaN(b.Min) || math.IsNaN(b.Max) || b.Min < 0 || b.Min > b.Max {
		return fmt.Errorf("%w: %s band [%v, %v]", ErrInvalidThresholds, name, b.Min, b.Max)
	}
	return nil
}

// Thresholds configures an Evaluator.
type Thresholds struct {
	FootShoulder    Band
	KneeFoot        map[exercise.SquatStage]Band
	KneeFallback    Band
	VisibilityFloor float64
}

// DefaultThresholds returns the bands the squat model was tuned with.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FootShoulder: Band{Min: 1.2, Max: 2.8},
		KneeFoot: map[exercise.SquatStage]Band{
			exercise.StageUp:     {Min: 0.5, Max: 1.0},
			exercise.StageMiddle: {Min: 0.7, Max: 1.0},
			exercise.StageDown:   {Min: 0.7, Max: 1.1},
		},
		KneeFallback:    Band{Min: 0, Max: 100},
		VisibilityFloor: DefaultVisibilityFloor,
	}
}

// Validate checks every band and the visibility floor.
func (t Thresholds) Validate() error {
	if math.IsNaN(t.VisibilityFloor) || t.VisibilityFloor < 0 || t.VisibilityFloor > 1 {
		return fmt.Errorf("%w: visibility floor %v outside [0,1]", ErrInvalidThresholds, t.VisibilityFloor)
	}
	if err := t.FootShoulder.validate("foot/shoulder"); err != nil {
		return err
	}
	if err := t.KneeFallback.validate("knee/foot fallback"); err != nil {
		return err
	}
	stages := make([]string, 0, len(t.KneeFoot))
	for s := range t.KneeFoot {
		stages = append(stages, string(s))
	}
	sort.Strings(stages)
	for _, s := range stages {
		stage, err := exercise.ParseSquatStage(s)
		if err != nil || stage == exercise.StageNone {
			return fmt.Errorf("%w: knee/foot band for unknown stage %q", ErrInvalidThresholds, s)
		}
		if err := t.KneeFoot[stage].validate("knee/foot " + s); err != nil {
			return err
		}
	}
	return nil
}

// KneeBand returns the knee/foot band for stage, or the fallback.
func (t Thresholds) KneeBand(stage exercise.SquatStage) Band {
	if b, ok := t.KneeFoot[stage]; ok {
		return b
	}
	return t.KneeFallback
}

// Sample is one frame's placement grades and the ratios behind them.
type Sample struct {
	Foot      Placement `json:"foot_placement"`
	Knee      Placement `json:"knee_placement"`
	FootRatio float64   `json:"foot_ratio,omitempty"`
	KneeRatio float64   `json:"knee_ratio,omitempty"`
}

// UnknownSample is reported for frames whose feet or knees are not visible.
var UnknownSample = Sample{Foot: Unknown, Knee: Unknown}

// Evaluator grades frames against fixed thresholds. It holds no per-frame
// state and may be shared.
type Evaluator struct {
	t Thresholds
}

// NewEvaluator validates t and returns an evaluator for it.
func NewEvaluator(t Thresholds) (*Evaluator, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Evaluator{t: t}, nil
}

// Thresholds returns the evaluator's configuration.
func (e *Evaluator) Thresholds() Thresholds { return e.t }

// gated are the landmarks that must clear the visibility floor.
var gated = [...]pose.LandmarkID{pose.LeftFootIndex, pose.RightFootIndex, pose.LeftKnee, pose.RightKnee}

// Evaluate grades foot width against shoulder width and knee width against
// foot width for the given stage.
func (e *Evaluator) Evaluate(lms []pose.Landmark, stage exercise.SquatStage) (Sample, error) {
	if err := pose.CheckLandmarks(lms); err != nil {
		return Sample{}, err
	}
	for _, id := range gated {
		if lms[id].Visibility < e.t.VisibilityFloor {
			return UnknownSample, nil
		}
	}

	shoulder := pose.Distance2D(lms[pose.LeftShoulder], lms[pose.RightShoulder])
	foot := pose.Distance2D(lms[pose.LeftFootIndex], lms[pose.RightFootIndex])
	knee := pose.Distance2D(lms[pose.LeftKnee], lms[pose.RightKnee])
	if shoulder == 0 {
		return Sample{}, fmt.Errorf("%w: zero shoulder width", ErrDegenerateGeometry)
	}
	if foot == 0 {
		return Sample{}, fmt.Errorf("%w: zero foot width", ErrDegenerateGeometry)
	}

	footRatio := numeric.RoundHalfUp(foot/shoulder, ratioDecimals)
	kneeRatio := numeric.RoundHalfUp(knee/foot, ratioDecimals)
	return Sample{
		Foot:      e.t.FootShoulder.Grade(footRatio),
		Knee:      e.t.KneeBand(stage).Grade(kneeRatio),
		FootRatio: footRatio,
		KneeRatio: kneeRatio,
	}, nil
}

// ThresholdsFromConfig builds Thresholds from a FormConfig, falling back to
// defaults for unset fields.
func ThresholdsFromConfig(cfg *config.FormConfig) (Thresholds, error) {
	foot := cfg.GetFootShoulderRatio()
	fallback := cfg.GetKneeFootFallback()
	t := Thresholds{
		FootShoulder:    Band{Min: foot[0], Max: foot[1]},
		KneeFoot:        make(map[exercise.SquatStage]Band),
		KneeFallback:    Band{Min: fallback[0], Max: fallback[1]},
		VisibilityFloor: cfg.GetVisibilityFloor(),
	}
	for name, band := range cfg.GetKneeFootRatio() {
		stage, err := exercise.ParseSquatStage(name)
		if err != nil {
			return Thresholds{}, fmt.Errorf("%w: %v", ErrInvalidThresholds, err)
		}
		t.KneeFoot[stage] = Band{Min: band[0], Max: band[1]}
	}
	if err := t.Validate(); err != nil {
		return Thresholds{}, err
	}
	return t, nil
}
