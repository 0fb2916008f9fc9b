package duration

import (
	"errors"
	"fmt"
	"math"

	"github.com/workoutwise/formcheck/internal/numeric"
)

// ErrInvalidFPS is returned for a frame rate that is not a positive number.
var ErrInvalidFPS = errors.New("fps must be positive")

// VoteTally counts settled per-frame votes per category for batch analysis,
// where processing speed says nothing about playback time.
type VoteTally struct {
	votes map[Category]int
	total int
}

// NewVoteTally returns an empty tally.
func NewVoteTally() *VoteTally {
	return &VoteTally{votes: make(map[Category]int)}
}

// Add records one vote for c. None is ignored.
func (t *VoteTally) Add(c Category) {
	if c == None {
		return
	}
	t.votes[c]++
	t.total++
}

// Votes is the number of votes recorded for c.
func (t *VoteTally) Votes(c Category) int { return t.votes[c] }

// Total is the number of votes across all categories.
func (t *VoteTally) Total() int { return t.total }

// Rescale spreads videoSeconds across categories in proportion to their
// votes, rounding half up. A tally with no votes reports zero everywhere.
func (t *VoteTally) Rescale(videoSeconds float64) map[Category]int {
	out := make(map[Category]int, len(Categories))
	for _, c := range Categories {
		out[c] = 0
	}
	if t.total == 0 || videoSeconds <= 0 || math.IsNaN(videoSeconds) || math.IsInf(videoSeconds, 0) {
		return out
	}
	scaling := videoSeconds / float64(t.total)
	for c, n := range t.votes {
		out[c] = numeric.RoundHalfUpInt(float64(n) * scaling)
	}
	return out
}

// VideoDuration is the playback length in seconds of frameCount frames at fps.
func VideoDuration(frameCount int, fps float64) (float64, error) {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return 0, fmt.Errorf("%w: got %v", ErrInvalidFPS, fps)
	}
	if frameCount < 0 {
		return 0, fmt.Errorf("frame count must not be negative, got %d", frameCount)
	}
	return float64(frameCount) / fps, nil
}
