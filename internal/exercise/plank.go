package exercise

import (
	"fmt"

	"github.com/workoutwise/formcheck/internal/duration"
)

// PlankStatus is the plank form label: correct, hips high or hips low.
type PlankStatus string

const (
	PlankUnknown PlankStatus = ""
	PlankCorrect PlankStatus = "C"
	PlankHigh    PlankStatus = "H"
	PlankLow     PlankStatus = "L"
)

// plankClasses maps classifier output indices to labels.
var plankClasses = [...]PlankStatus{PlankCorrect, PlankHigh, PlankLow}

// ParsePlankClass maps a plank classifier class index to its label.
func ParsePlankClass(idx int) (PlankStatus, error) {
	if idx < 0 || idx >= len(plankClasses) {
		return PlankUnknown, fmt.Errorf("%w: plank class %d", ErrUnknownClass, idx)
	}
	return plankClasses[idx], nil
}

// Category is the duration bucket the status is timed under.
func (s PlankStatus) Category() duration.Category {
	switch s {
	case PlankCorrect:
		return duration.Correct
	case PlankHigh, PlankLow:
		return duration.Incorrect
	default:
		return duration.None
	}
}

// FormStatus is the status as reported to clients.
func (s PlankStatus) FormStatus() string {
	switch s {
	case PlankCorrect:
		return "correct"
	case PlankHigh:
		return "hips-high"
	case PlankLow:
		return "hips-low"
	default:
		return "analyzing"
	}
}

// PlankMachine commits every change of the smoothed plank label. It counts no
// reps; time in each status is the consumer's concern.
type PlankMachine struct {
	status PlankStatus
}

// NewPlankMachine starts in PlankUnknown.
func NewPlankMachine() *PlankMachine {
	return &PlankMachine{}
}

// Status is the last committed status.
func (m *PlankMachine) Status() PlankStatus { return m.status }

// Transition commits smoothed when it differs from the current status.
func (m *PlankMachine) Transition(smoothed PlankStatus) []Event {
	if smoothed == m.status || smoothed == PlankUnknown {
		return nil
	}
	prev := m.status
	m.status = smoothed
	return []Event{{Kind: StateChanged, From: string(prev), To: string(smoothed)}}
}
