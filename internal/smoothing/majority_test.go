package smoothing

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pushAll[L comparable](b *MajorityBuffer[L], labels ...L) {
	for _, l := range labels {
		b.Push(l)
	}
}

func TestNewMajorityBuffer_Size(t *testing.T) {
	_, err := NewMajorityBuffer[string](0)
	assert.ErrorIs(t, err, ErrWindowSize)

	b, err := NewMajorityBuffer[string](DefaultWindowSize)
	require.NoError(t, err)
	assert.Equal(t, 5, b.Cap())
	assert.Equal(t, 0, b.Len())
}

func TestMode_RequiresSettled(t *testing.T) {
	b, err := NewMajorityBuffer[string](3)
	require.NoError(t, err)

	pushAll(b, "C", "C")
	_, ok := b.Mode()
	assert.False(t, ok)
	assert.False(t, b.IsSettled())

	b.Push("H")
	got, ok := b.Mode()
	assert.True(t, ok)
	assert.Equal(t, "C", got)
}

func TestMode_PlankScenario(t *testing.T) {
	b, err := NewMajorityBuffer[string](5)
	require.NoError(t, err)

	pushAll(b, "C", "C", "H", "C", "C")
	got, ok := b.Mode()
	require.True(t, ok)
	assert.Equal(t, "C", got)

	b.Push("H")
	if diff := cmp.Diff([]string{"C", "H", "C", "C", "H"}, b.Window()); diff != "" {
		t.Errorf("window mismatch (-want +got):\n%s", diff)
	}
	got, _ = b.Mode()
	assert.Equal(t, "C", got, "3 C vs 2 H keeps C")
}

func TestMode_TieBreak(t *testing.T) {
	tests := []struct {
		name   string
		window []string
		want   string
	}{
		{"last seen earlier wins", []string{"A", "B", "B", "A"}, "B"},
		{"other order", []string{"B", "A", "A", "B"}, "A"},
		{"interleaved", []string{"A", "B", "A", "B"}, "A"},
		{"three way", []string{"C", "B", "A"}, "C"},
		{"strict majority beats order", []string{"A", "B", "B", "B"}, "B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewMajorityBuffer[string](len(tt.window))
			require.NoError(t, err)
			pushAll(b, tt.window...)
			got, ok := b.Mode()
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMode_Eviction(t *testing.T) {
	b, err := NewMajorityBuffer[int](3)
	require.NoError(t, err)

	pushAll(b, 1, 1, 1, 2, 2)
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []int{1, 2, 2}, b.Window())
	got, _ := b.Mode()
	assert.Equal(t, 2, got)
}

func TestLeader(t *testing.T) {
	b, err := NewMajorityBuffer[string](5)
	require.NoError(t, err)

	_, ok := b.Leader()
	assert.False(t, ok)

	pushAll(b, "wide", "correct", "correct")
	got, ok := b.Leader()
	assert.True(t, ok)
	assert.Equal(t, "correct", got)
}

func TestReset(t *testing.T) {
	b, err := NewMajorityBuffer[string](2)
	require.NoError(t, err)
	pushAll(b, "a", "b", "c")
	b.Reset()
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Window())
	b.Push("z")
	assert.Equal(t, []string{"z"}, b.Window())
}

// referenceMode recomputes the modal label of window from scratch.
func referenceMode(window []int) int {
	counts := map[int]int{}
	last := map[int]int{}
	for i, l := range window {
		counts[l]++
		last[l] = i
	}
	best := window[0]
	for _, l := range window {
		if counts[l] > counts[best] || (counts[l] == counts[best] && last[l] < last[best]) {
			best = l
		}
	}
	return best
}

func TestMode_MatchesReference(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, size := range []int{1, 2, 5, 7} {
		b, err := NewMajorityBuffer[int](size)
		require.NoError(t, err)
		var history []int
		for i := 0; i < 500; i++ {
			l := rng.Intn(3)
			b.Push(l)
			history = append(history, l)
			if len(history) < size {
				continue
			}
			window := history[len(history)-size:]
			got, ok := b.Mode()
			require.True(t, ok)
			if got != referenceMode(window) {
				t.Fatalf("size %d window %v: got %d, want %d", size, window, got, referenceMode(window))
			}
		}
	}
}
