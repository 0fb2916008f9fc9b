// Package numeric holds the small rounding helpers shared by the ratio
// evaluator, the squat stage gate and the duration rescaler.
package numeric

import "math"

// roundingSlack absorbs binary representation error so that values printed
// as an exact half (e.g. 0.15, 2.25) round up the way a person expects.
const roundingSlack = 1e-9

// RoundHalfUp rounds v to the given number of decimal places, with ties
// going towards positive infinity.
func RoundHalfUp(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	p := math.Pow10(places)
	return math.Floor(v*p+0.5+roundingSlack) / p
}

// RoundHalfUpInt rounds v to the nearest integer, ties up.
func RoundHalfUpInt(v float64) int {
	return int(RoundHalfUp(v, 0))
}
