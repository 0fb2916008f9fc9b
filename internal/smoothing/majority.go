// Package smoothing provides the fixed-window majority vote used to stabilise
// noisy per-frame labels.
package smoothing

import (
	"errors"
	"fmt"
)

// DefaultWindowSize is the window used when a configuration does not set one.
const DefaultWindowSize = 5

// ErrWindowSize is returned for a window capacity below one.
var ErrWindowSize = errors.New("window size must be at least 1")

// MajorityBuffer is a fixed-capacity FIFO of labels that reports the modal
// label of its window. It is not safe for concurrent use; each session owns
// its own buffers.
type MajorityBuffer[L comparable] struct {
	buf   []L
	head  int // index of the oldest entry
	count int
}

// NewMajorityBuffer creates an empty buffer holding at most size labels.
func NewMajorityBuffer[L comparable](size int) (*MajorityBuffer[L], error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrWindowSize, size)
	}
	return &MajorityBuffer[L]{buf: make([]L, size)}, nil
}

// Push appends label, evicting the oldest entry once the window is full.
func (b *MajorityBuffer[L]) Push(label L) {
	if b.count < len(b.buf) {
		b.buf[(b.head+b.count)%len(b.buf)] = label
		b.count++
		return
	}
	b.buf[b.head] = label
	b.head = (b.head + 1) % len(b.buf)
}

// Len is the number of labels currently held.
func (b *MajorityBuffer[L]) Len() int { return b.count }

// Cap is the window capacity.
func (b *MajorityBuffer[L]) Cap() int { return len(b.buf) }

// IsSettled reports whether the window is full.
func (b *MajorityBuffer[L]) IsSettled() bool { return b.count == len(b.buf) }

// Mode returns the modal label of a settled window. ok is false until the
// window is full.
//
// Among labels tied for the highest count, the one whose most recent
// occurrence is earliest in the window wins.
func (b *MajorityBuffer[L]) Mode() (label L, ok bool) {
	if !b.IsSettled() {
		return label, false
	}
	return b.modal(), true
}

// Leader is Mode without the settled requirement. ok is false only for an
// empty window.
func (b *MajorityBuffer[L]) Leader() (label L, ok bool) {
	if b.count == 0 {
		return label, false
	}
	return b.modal(), true
}

// Window returns the held labels, oldest first.
func (b *MajorityBuffer[L]) Window() []L {
	out := make([]L, b.count)
	for i := range out {
		out[i] = b.at(i)
	}
	return out
}

// Reset empties the window.
func (b *MajorityBuffer[L]) Reset() {
	var zero L
	for i := range b.buf {
		b.buf[i] = zero
	}
	b.head = 0
	b.count = 0
}

func (b *MajorityBuffer[L]) at(i int) L {
	return b.buf[(b.head+i)%len(b.buf)]
}

type tally struct {
	count int
	last  int
}

func (b *MajorityBuffer[L]) modal() L {
	seen := make(map[L]*tally, b.count)
	for i := 0; i < b.count; i++ {
		l := b.at(i)
		t, ok := seen[l]
		if !ok {
			t = &tally{}
			seen[l] = t
		}
		t.count++
		t.last = i
	}

	best := b.at(0)
	bt := seen[best]
	for i := 1; i < b.count; i++ {
		l := b.at(i)
		t := seen[l]
		if t.count > bt.count || (t.count == bt.count && t.last < bt.last) {
			best, bt = l, t
		}
	}
	return best
}
