// Package session runs the per-frame form-analysis pipeline for one exercise
// recording or live stream. A session is driven from a single goroutine; the
// only state shared between sessions is the read-only Models bundle.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/workoutwise/formcheck/internal/classify"
	"github.com/workoutwise/formcheck/internal/config"
	"github.com/workoutwise/formcheck/internal/exercise"
	"github.com/workoutwise/formcheck/internal/placement"
	"github.com/workoutwise/formcheck/internal/pose"
	"github.com/workoutwise/formcheck/internal/timeutil"
)

// Mode selects how time in each form category is measured.
type Mode string

const (
	// Live sessions time categories with the wall clock as frames arrive.
	Live Mode = "live"
	// Batch sessions count per-frame votes and rescale them to the video
	// length when finished.
	Batch Mode = "batch"
)

// ParseMode validates a mode name. The empty string selects Live.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", Live:
		return Live, nil
	case Batch:
		return Batch, nil
	default:
		return "", fmt.Errorf("unknown session mode %q", s)
	}
}

// ErrFinished is returned when a finished session is used again.
var ErrFinished = errors.New("session already finished")

// Models is the immutable classifier bundle shared by all sessions.
type Models struct {
	Plank classify.Classifier
	Squat classify.Classifier
}

type schemaChecker interface {
	CheckSchema(pose.Schema) error
}

// LoadModels reads both classifier models and checks them against their
// feature schemas.
func LoadModels(plankPath, squatPath string) (Models, error) {
	plank, err := classify.LoadModel(plankPath)
	if err != nil {
		return Models{}, fmt.Errorf("plank model: %w", err)
	}
	squat, err := classify.LoadModel(squatPath)
	if err != nil {
		return Models{}, fmt.Errorf("squat model: %w", err)
	}
	m := Models{Plank: plank, Squat: squat}
	if err := m.Validate(); err != nil {
		return Models{}, err
	}
	return m, nil
}

// Validate asserts that each model can consume its exercise's features.
func (m Models) Validate() error {
	if err := checkModel(m.Plank, pose.PlankSchema); err != nil {
		return fmt.Errorf("plank model: %w", err)
	}
	if err := checkModel(m.Squat, pose.SquatSchema); err != nil {
		return fmt.Errorf("squat model: %w", err)
	}
	return nil
}

func (m Models) forKind(kind exercise.Kind) (classify.Classifier, pose.Schema, error) {
	switch kind {
	case exercise.Plank:
		return m.Plank, pose.PlankSchema, nil
	case exercise.Squat:
		return m.Squat, pose.SquatSchema, nil
	default:
		return nil, pose.Schema{}, fmt.Errorf("%w: %q", exercise.ErrUnknownExercise, kind)
	}
}

func checkModel(c classify.Classifier, s pose.Schema) error {
	if c == nil {
		return errors.New("no model loaded")
	}
	if sc, ok := c.(schemaChecker); ok {
		return sc.CheckSchema(s)
	}
	return s.Assert(c.InputWidth())
}

// Options are the smoothing and grading parameters of a session.
type Options struct {
	PlankConfidenceThreshold float64
	PlankWindowSize          int
	SquatConfidenceThreshold float64
	SquatStageThreshold      float64
	SquatStageWindowSize     int
	SquatProbabilityDecimals int
	PlacementWindowSize      int
	Placement                placement.Thresholds
	// TimelineLimit caps the retained timeline points; 0 keeps all.
	TimelineLimit int
}

// DefaultOptions mirrors config.DefaultFormConfig.
func DefaultOptions() Options {
	opts, err := OptionsFromConfig(config.EmptyFormConfig())
	if err != nil {
		panic(fmt.Sprintf("default options invalid: %v", err))
	}
	return opts
}

// OptionsFromConfig builds Options from a FormConfig.
func OptionsFromConfig(cfg *config.FormConfig) (Options, error) {
	th, err := placement.ThresholdsFromConfig(cfg)
	if err != nil {
		return Options{}, err
	}
	opts := Options{
		PlankConfidenceThreshold: cfg.GetPlankConfidenceThreshold(),
		PlankWindowSize:          cfg.GetPlankWindowSize(),
		SquatConfidenceThreshold: cfg.GetSquatConfidenceThreshold(),
		SquatStageThreshold:      cfg.GetSquatStageThreshold(),
		SquatStageWindowSize:     cfg.GetSquatStageWindowSize(),
		SquatProbabilityDecimals: cfg.GetSquatProbabilityDecimals(),
		PlacementWindowSize:      cfg.GetPlacementWindowSize(),
		Placement:                th,
		TimelineLimit:            cfg.GetLiveTimelineLimit(),
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Validate rejects options a session cannot start with.
func (o Options) Validate() error {
	thresholds := []struct {
		name string
		v    float64
	}{
		{"plank confidence threshold", o.PlankConfidenceThreshold},
		{"squat confidence threshold", o.SquatConfidenceThreshold},
		{"squat stage threshold", o.SquatStageThreshold},
	}
	for _, th := range thresholds {
		if err := classify.CheckConfidence(th.v); err != nil {
			return fmt.Errorf("%s: %w", th.name, err)
		}
	}
	if o.SquatProbabilityDecimals < 0 {
		return fmt.Errorf("squat probability decimals must be non-negative, got %d", o.SquatProbabilityDecimals)
	}
	if o.TimelineLimit < 0 {
		return fmt.Errorf("timeline limit must be non-negative, got %d", o.TimelineLimit)
	}
	return o.Placement.Validate()
}

// Config describes one session.
type Config struct {
	Kind    exercise.Kind
	Mode    Mode
	UserID  string
	Options Options
	// Clock drives live timers. Nil uses the real clock.
	Clock timeutil.Clock
	// FPS is the recording frame rate; required in batch mode.
	FPS float64
	// FrameCount overrides the number of frames used for the video length in
	// batch mode. Zero uses the number of frames processed.
	FrameCount int
}

// Session is one exercise analysis. Implementations are not safe for
// concurrent use.
type Session interface {
	ID() string
	Kind() exercise.Kind
	Mode() Mode
	// Process runs one frame through the pipeline. Per-frame failures are
	// reported in the result and never end the session.
	Process(frame pose.Frame) FrameResult
	// Status is a non-mutating view of the session so far.
	Status() Summary
	// Finish closes the session and returns its final summary.
	Finish() (Summary, error)
	// Timeline returns the retained per-frame history, oldest first.
	Timeline() []TimelinePoint
}

// New validates cfg against models and returns a ready session. All
// configuration errors surface here, before any frame is processed.
func New(models Models, cfg Config) (Session, error) {
	if _, err := exercise.ParseKind(string(cfg.Kind)); err != nil {
		return nil, err
	}
	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode
	if err := cfg.Options.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session options: %w", err)
	}
	if mode == Batch {
		if err := checkFPS(cfg.FPS); err != nil {
			return nil, err
		}
		if cfg.FrameCount < 0 {
			return nil, fmt.Errorf("frame count must not be negative, got %d", cfg.FrameCount)
		}
	}
	model, schema, err := models.forKind(cfg.Kind)
	if err != nil {
		return nil, err
	}
	if err := checkModel(model, schema); err != nil {
		return nil, fmt.Errorf("%s model: %w", cfg.Kind, err)
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}

	b := base{
		id:       uuid.NewString(),
		cfg:      cfg,
		model:    model,
		schema:   schema,
		started:  cfg.Clock.Now(),
		timeline: newTimeline(cfg.Options.TimelineLimit),
		diag:     newDiagnostics(),
	}
	if cfg.Kind == exercise.Plank {
		s, err := newPlankSession(b)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := newSquatSession(b)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// base carries what plank and squat sessions share.
type base struct {
	id       string
	cfg      Config
	model    classify.Classifier
	schema   pose.Schema
	started  time.Time
	finished *time.Time
	frames   int
	timeline *timeline
	diag     Diagnostics
}

func (b *base) ID() string          { return b.id }
func (b *base) Kind() exercise.Kind { return b.cfg.Kind }
func (b *base) Mode() Mode          { return b.cfg.Mode }

func (b *base) Timeline() []TimelinePoint { return b.timeline.points() }

// summary fills the fields common to every exercise.
func (b *base) summary() Summary {
	return Summary{
		ID:          b.id,
		UserID:      b.cfg.UserID,
		Exercise:    b.cfg.Kind,
		Mode:        b.cfg.Mode,
		StartedAt:   b.started,
		FinishedAt:  b.finished,
		Diagnostics: b.diag.clone(),
	}
}

// elapsed is the session-relative timestamp of the current frame: wall
// clock in live mode, playback position in batch mode.
func (b *base) elapsed(now time.Time) float64 {
	if b.cfg.Mode == Batch {
		return float64(b.frames-1) / b.cfg.FPS
	}
	return now.Sub(b.started).Seconds()
}

// predict extracts features and runs the model. A non-nil result means the
// frame ended early and that result should be returned as is.
func (b *base) predict(frame pose.Frame) (classify.Prediction, *FrameResult) {
	b.frames++
	res := FrameResult{Index: b.frames - 1}
	if !frame.Detected() {
		res.Outcome = OutcomeNoPose
		return classify.Prediction{}, &res
	}
	fv, err := b.schema.Extract(frame.Landmarks)
	if err != nil {
		res.fail(OutcomeFeatureError, err)
		b.logSkip(res)
		return classify.Prediction{}, &res
	}
	pred, err := b.model.Classify(fv.Values)
	if err == nil {
		err = classify.CheckConfidence(pred.Confidence())
	}
	if err != nil {
		res.fail(OutcomeClassifierError, err)
		b.logSkip(res)
		return classify.Prediction{}, &res
	}
	return pred, nil
}

func (b *base) checkOpen() error {
	if b.finished != nil {
		return fmt.Errorf("%w: %s", ErrFinished, b.id)
	}
	return nil
}

func (b *base) finish(now time.Time) (Summary, error) {
	if err := b.checkOpen(); err != nil {
		return Summary{}, err
	}
	b.finished = &now
	return b.summary(), nil
}
