package exercise

import (
	"fmt"

	"github.com/workoutwise/formcheck/internal/classify"
)

// SquatStage is a phase of the squat motion.
type SquatStage string

const (
	StageNone   SquatStage = ""
	StageDown   SquatStage = "down"
	StageMiddle SquatStage = "middle"
	StageUp     SquatStage = "up"
)

// DefaultStageThreshold is the probability a stage prediction needs before
// the machine moves.
const DefaultStageThreshold = 0.7

// squatClasses maps the stage classifier's output indices to stages. The
// classifier never predicts the middle stage; it exists for placement bands.
var squatClasses = [...]SquatStage{StageDown, StageUp}

// ParseSquatClass maps a squat classifier class index to its stage.
func ParseSquatClass(idx int) (SquatStage, error) {
	if idx < 0 || idx >= len(squatClasses) {
		return StageNone, fmt.Errorf("%w: squat class %d", ErrUnknownClass, idx)
	}
	return squatClasses[idx], nil
}

// ParseSquatStage validates a stage name such as a configuration key.
func ParseSquatStage(s string) (SquatStage, error) {
	switch SquatStage(s) {
	case StageNone, StageDown, StageMiddle, StageUp:
		return SquatStage(s), nil
	default:
		return StageNone, fmt.Errorf("unknown squat stage %q", s)
	}
}

// SquatMachine tracks the squat stage and counts one rep per down to up
// transition.
type SquatMachine struct {
	threshold float64
	stage     SquatStage
	reps      int
}

// NewSquatMachine returns a machine that moves only on predictions with
// probability >= threshold.
func NewSquatMachine(threshold float64) (*SquatMachine, error) {
	if err := classify.CheckConfidence(threshold); err != nil {
		return nil, fmt.Errorf("stage threshold: %w", err)
	}
	return &SquatMachine{threshold: threshold}, nil
}

// Stage is the current stage.
func (m *SquatMachine) Stage() SquatStage { return m.stage }

// Reps is the number of completed reps. It never decreases.
func (m *SquatMachine) Reps() int { return m.reps }

// Transition applies one smoothed stage label with the raw probability of
// the current frame.
func (m *SquatMachine) Transition(smoothed SquatStage, probability float64) []Event {
	if probability < m.threshold {
		return nil
	}
	switch smoothed {
	case StageDown:
		if m.stage == StageDown {
			return nil
		}
		prev := m.stage
		m.stage = StageDown
		return []Event{{Kind: StateChanged, From: string(prev), To: string(StageDown)}}
	case StageUp:
		if m.stage != StageDown {
			return nil
		}
		m.stage = StageUp
		m.reps++
		return []Event{
			{Kind: StateChanged, From: string(StageDown), To: string(StageUp)},
			{Kind: RepIncrement, From: string(StageDown), To: string(StageUp)},
		}
	default:
		return nil
	}
}
