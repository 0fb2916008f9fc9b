package session

import (
	"fmt"

	"github.com/workoutwise/formcheck/internal/classify"
	"github.com/workoutwise/formcheck/internal/duration"
	"github.com/workoutwise/formcheck/internal/exercise"
	"github.com/workoutwise/formcheck/internal/monitoring"
	"github.com/workoutwise/formcheck/internal/pose"
	"github.com/workoutwise/formcheck/internal/smoothing"
)

// PlankSession tracks plank form and the time spent in correct and
// incorrect form.
type PlankSession struct {
	base
	window  *smoothing.MajorityBuffer[exercise.PlankStatus]
	machine *exercise.PlankMachine
	ledger  *duration.Ledger    // live mode
	votes   *duration.VoteTally // batch mode
}

func newPlankSession(b base) (*PlankSession, error) {
	window, err := smoothing.NewMajorityBuffer[exercise.PlankStatus](b.cfg.Options.PlankWindowSize)
	if err != nil {
		return nil, fmt.Errorf("plank window: %w", err)
	}
	return &PlankSession{
		base:    b,
		window:  window,
		machine: exercise.NewPlankMachine(),
		ledger:  duration.NewLedger(),
		votes:   duration.NewVoteTally(),
	}, nil
}

// Process implements Session.
func (s *PlankSession) Process(frame pose.Frame) FrameResult {
	if s.finished != nil {
		return s.rejected()
	}
	res := s.process(frame)
	s.record(res, s.machine.Status().FormStatus(), 0)
	return res
}

func (s *PlankSession) process(frame pose.Frame) FrameResult {
	pred, early := s.predict(frame)
	if early != nil {
		return *early
	}
	res := FrameResult{Index: s.frames - 1, Confidence: pred.Confidence()}

	status, err := exercise.ParsePlankClass(pred.Class)
	if err != nil {
		res.fail(OutcomeClassifierError, err)
		s.logSkip(res)
		return res
	}
	res.Label = string(status)

	label, ok, err := classify.Gate(status, pred.Confidence(), s.cfg.Options.PlankConfidenceThreshold)
	if err != nil {
		res.fail(OutcomeClassifierError, err)
		s.logSkip(res)
		return res
	}
	if ok {
		s.window.Push(label)
		res.Outcome = OutcomeObserved
	} else {
		res.Outcome = OutcomeLowConfidence
	}

	smoothed, settled := s.window.Mode()
	if !settled {
		return res
	}
	if s.cfg.Mode == Batch {
		s.votes.Add(smoothed.Category())
	}
	res.Events = s.machine.Transition(smoothed)
	if s.cfg.Mode == Live {
		now := s.cfg.Clock.Now()
		for _, ev := range res.Events {
			from := exercise.PlankStatus(ev.From).Category()
			to := exercise.PlankStatus(ev.To).Category()
			if err := s.ledger.OnStateChange(from, to, now); err != nil {
				monitoring.Logf("session %s: %v", s.id, err)
			}
		}
	}
	return res
}

// Status implements Session.
func (s *PlankSession) Status() Summary {
	sum := s.summary()
	sum.FormStatus = s.machine.Status().FormStatus()
	switch s.cfg.Mode {
	case Live:
		now := s.cfg.Clock.Now()
		if s.finished != nil {
			now = *s.finished
		}
		sum.CorrectSeconds = seconds(s.ledger.LiveTotal(duration.Correct, now).Seconds())
		sum.IncorrectSeconds = seconds(s.ledger.LiveTotal(duration.Incorrect, now).Seconds())
	case Batch:
		video := s.videoSeconds()
		rescaled := s.votes.Rescale(video)
		sum.CorrectSeconds = rescaled[duration.Correct]
		sum.IncorrectSeconds = rescaled[duration.Incorrect]
		sum.VideoSeconds = video
	}
	return sum
}

// Finish implements Session.
func (s *PlankSession) Finish() (Summary, error) {
	now := s.cfg.Clock.Now()
	if _, err := s.finish(now); err != nil {
		return Summary{}, err
	}
	if s.cfg.Mode == Live {
		s.ledger.Close(now)
	}
	return s.Status(), nil
}
