package numeric

import (
	"math"
	"testing"
)

func TestRoundHalfUp(t *testing.T) {
	tests := []struct {
		name   string
		v      float64
		places int
		want   float64
	}{
		{"exact", 2.5, 1, 2.5},
		{"half up one place", 2.25, 1, 2.3},
		{"half up decimal artefact", 0.15, 1, 0.2},
		{"below half", 1.24, 1, 1.2},
		{"two places", 0.695, 2, 0.7},
		{"integer tie", 2.5, 0, 3},
		{"integer below", 6.49, 0, 6},
		{"zero", 0, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundHalfUp(tt.v, tt.places)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("RoundHalfUp(%v, %d) = %v, want %v", tt.v, tt.places, got, tt.want)
			}
		})
	}
}

func TestRoundHalfUp_NonFinite(t *testing.T) {
	if got := RoundHalfUp(math.Inf(1), 1); !math.IsInf(got, 1) {
		t.Errorf("RoundHalfUp(+Inf) = %v, want +Inf", got)
	}
	if got := RoundHalfUp(math.NaN(), 1); !math.IsNaN(got) {
		t.Errorf("RoundHalfUp(NaN) = %v, want NaN", got)
	}
}

func TestRoundHalfUpInt(t *testing.T) {
	if got := RoundHalfUpInt(13.5); got != 14 {
		t.Errorf("RoundHalfUpInt(13.5) = %d, want 14", got)
	}
	if got := RoundHalfUpInt(6.0); got != 6 {
		t.Errorf("RoundHalfUpInt(6.0) = %d, want 6", got)
	}
}
