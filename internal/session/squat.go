package session

import (
	"fmt"

	"github.com/workoutwise/formcheck/internal/classify"
	"github.com/workoutwise/formcheck/internal/exercise"
	"github.com/workoutwise/formcheck/internal/monitoring"
	"github.com/workoutwise/formcheck/internal/numeric"
	"github.com/workoutwise/formcheck/internal/placement"
	"github.com/workoutwise/formcheck/internal/pose"
	"github.com/workoutwise/formcheck/internal/smoothing"
)

// SquatSession counts squat reps and grades foot and knee placement.
type SquatSession struct {
	base
	stages    *smoothing.MajorityBuffer[exercise.SquatStage]
	machine   *exercise.SquatMachine
	evaluator *placement.Evaluator
	feet      *smoothing.MajorityBuffer[placement.Placement]
	knees     *smoothing.MajorityBuffer[placement.Placement]
	lastProb  float64
}

func newSquatSession(b base) (*SquatSession, error) {
	opts := b.cfg.Options
	stages, err := smoothing.NewMajorityBuffer[exercise.SquatStage](opts.SquatStageWindowSize)
	if err != nil {
		return nil, fmt.Errorf("squat stage window: %w", err)
	}
	machine, err := exercise.NewSquatMachine(opts.SquatStageThreshold)
	if err != nil {
		return nil, err
	}
	evaluator, err := placement.NewEvaluator(opts.Placement)
	if err != nil {
		return nil, err
	}
	feet, err := smoothing.NewMajorityBuffer[placement.Placement](opts.PlacementWindowSize)
	if err != nil {
		return nil, fmt.Errorf("placement window: %w", err)
	}
	knees, err := smoothing.NewMajorityBuffer[placement.Placement](opts.PlacementWindowSize)
	if err != nil {
		return nil, fmt.Errorf("placement window: %w", err)
	}
	return &SquatSession{
		base:      b,
		stages:    stages,
		machine:   machine,
		evaluator: evaluator,
		feet:      feet,
		knees:     knees,
	}, nil
}

// Process implements Session.
func (s *SquatSession) Process(frame pose.Frame) FrameResult {
	if s.finished != nil {
		return s.rejected()
	}
	res := s.process(frame)
	s.record(res, string(s.machine.Stage()), s.machine.Reps())
	return res
}

func (s *SquatSession) process(frame pose.Frame) FrameResult {
	pred, early := s.predict(frame)
	if early != nil {
		return *early
	}

	stage, err := exercise.ParseSquatClass(pred.Class)
	if err != nil {
		res := FrameResult{Index: s.frames - 1}
		res.fail(OutcomeClassifierError, err)
		s.logSkip(res)
		return res
	}
	prob := numeric.RoundHalfUp(pred.Confidence(), s.cfg.Options.SquatProbabilityDecimals)
	res := FrameResult{Index: s.frames - 1, Label: string(stage), Confidence: prob}
	s.lastProb = prob

	label, ok, err := classify.Gate(stage, prob, s.cfg.Options.SquatConfidenceThreshold)
	if err != nil {
		res.fail(OutcomeClassifierError, err)
		s.logSkip(res)
		return res
	}
	if ok {
		s.stages.Push(label)
		res.Outcome = OutcomeObserved
	} else {
		res.Outcome = OutcomeLowConfidence
	}
	if smoothed, settled := s.stages.Mode(); settled {
		res.Events = s.machine.Transition(smoothed, prob)
	}

	// Placement is graded against the stage after this frame's update.
	sample, err := s.evaluator.Evaluate(frame.Landmarks, s.machine.Stage())
	if err != nil {
		s.diag.PlacementErrors++
		monitoring.Logf("session %s: frame %d placement skipped: %v", s.id, res.Index, err)
		return res
	}
	s.feet.Push(sample.Foot)
	s.knees.Push(sample.Knee)
	res.Placement = &sample
	return res
}

// Status implements Session.
func (s *SquatSession) Status() Summary {
	sum := s.summary()
	sum.RepCount = s.machine.Reps()
	sum.Stage = string(s.machine.Stage())
	sum.LastProbability = s.lastProb
	sum.FootStatus = leader(s.feet)
	sum.KneeStatus = leader(s.knees)
	if s.cfg.Mode == Batch {
		sum.VideoSeconds = s.videoSeconds()
	}
	return sum
}

// Finish implements Session.
func (s *SquatSession) Finish() (Summary, error) {
	if _, err := s.finish(s.cfg.Clock.Now()); err != nil {
		return Summary{}, err
	}
	return s.Status(), nil
}

// leader is the modal placement of whatever the window holds, so short
// recordings still get a verdict.
func leader(b *smoothing.MajorityBuffer[placement.Placement]) placement.Placement {
	p, ok := b.Leader()
	if !ok {
		return placement.Unknown
	}
	return p
}
