// Package duration accumulates time spent in each form category, either from
// wall-clock state changes (live) or from per-frame votes rescaled to the
// true video length (batch).
package duration

import (
	"errors"
	"fmt"
	"time"
)

// Category is the bucket time is accounted to.
type Category string

const (
	None      Category = ""
	Correct   Category = "correct"
	Incorrect Category = "incorrect"
)

// Categories lists the accountable categories in report order.
var Categories = []Category{Correct, Incorrect}

// ErrLedgerState is returned when a state change does not start from the
// category the ledger currently has open.
var ErrLedgerState = errors.New("ledger state mismatch")

// Ledger is the live duration accumulator. Every transition closes the open
// interval and opens the next one in a single call, so at most one interval
// is open at any time.
type Ledger struct {
	totals   map[Category]time.Duration
	open     Category
	openedAt time.Time
}

// NewLedger returns a ledger with nothing open.
func NewLedger() *Ledger {
	return &Ledger{totals: make(map[Category]time.Duration)}
}

// OnStateChange closes the interval for from and opens one for to at now.
// Passing None as to leaves nothing open. Moving between two states of the
// same category closes and reopens that category's interval.
func (l *Ledger) OnStateChange(from, to Category, now time.Time) error {
	if from != l.open {
		return fmt.Errorf("%w: closing %q but %q is open", ErrLedgerState, from, l.open)
	}
	l.closeAt(now)
	if to != None {
		l.open = to
		l.openedAt = now
	}
	return nil
}

// Close ends the open interval, if any, at now.
func (l *Ledger) Close(now time.Time) {
	l.closeAt(now)
}

// Open is the category of the open interval, None if nothing is open.
func (l *Ledger) Open() Category { return l.open }

// Total is the finalized time for c, excluding any open interval.
func (l *Ledger) Total(c Category) time.Duration {
	return l.totals[c]
}

// LiveTotal is Total plus the elapsed part of c's open interval at now. It
// never mutates the ledger.
func (l *Ledger) LiveTotal(c Category, now time.Time) time.Duration {
	total := l.totals[c]
	if c != None && c == l.open {
		total += elapsed(l.openedAt, now)
	}
	return total
}

func (l *Ledger) closeAt(now time.Time) {
	if l.open == None {
		return
	}
	l.totals[l.open] += elapsed(l.openedAt, now)
	l.open = None
	l.openedAt = time.Time{}
}

// elapsed clamps negative spans from a clock stepping backwards to zero.
func elapsed(from, to time.Time) time.Duration {
	d := to.Sub(from)
	if d < 0 {
		return 0
	}
	return d
}
