// Package exercise holds the closed label sets of each supported exercise and
// the state machines that turn smoothed labels into status changes and reps.
package exercise

import (
	"errors"
	"fmt"
)

// Kind names a supported exercise.
type Kind string

const (
	Plank Kind = "plank"
	Squat Kind = "squat"
)

// ErrUnknownExercise is returned for an unsupported exercise name.
var ErrUnknownExercise = errors.New("unknown exercise")

// ErrUnknownClass is returned when a classifier emits a class index outside
// the exercise's label set.
var ErrUnknownClass = errors.New("unknown class index")

// ParseKind validates an exercise name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Plank, Squat:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownExercise, s)
	}
}

// EventKind distinguishes state machine events.
type EventKind string

const (
	StateChanged EventKind = "state_changed"
	RepIncrement EventKind = "rep_increment"
)

// Event is emitted by a state machine transition. From and To carry the
// states as strings so plank and squat events share one type.
type Event struct {
	Kind EventKind `json:"kind"`
	From string    `json:"from"`
	To   string    `json:"to"`
}
