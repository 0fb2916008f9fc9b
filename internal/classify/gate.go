package classify

import (
	"errors"
	"fmt"
	"math"
)

// ErrConfidenceRange is returned when a confidence or threshold lies outside
// [0, 1]. Such values come from a broken classifier and are never clamped.
var ErrConfidenceRange = errors.New("confidence out of range [0,1]")

// Observation is one frame's classifier verdict.
type Observation[L any] struct {
	Label      L
	Confidence float64
}

// Gate passes label through when confidence >= threshold. A false ok means
// the frame contributes no vote.
func Gate[L any](label L, confidence, threshold float64) (out L, ok bool, err error) {
	if err := CheckConfidence(confidence); err != nil {
		return out, false, err
	}
	if err := CheckConfidence(threshold); err != nil {
		return out, false, fmt.Errorf("threshold: %w", err)
	}
	if confidence < threshold {
		return out, false, nil
	}
	return label, true, nil
}

// Gate applies Gate to the observation.
func (o Observation[L]) Gate(threshold float64) (L, bool, error) {
	return Gate(o.Label, o.Confidence, threshold)
}

// CheckConfidence returns ErrConfidenceRange unless 0 <= v <= 1.
func CheckConfidence(v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%w: %v", ErrConfidenceRange, v)
	}
	return nil
}
