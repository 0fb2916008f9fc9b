// Package timeutil abstracts the wall clock so live session timers and the
// idle-session reaper can be driven by tests.
package timeutil

import (
	"sync"
	"time"
)

// Clock is what live sessions and the reaper need from the time package.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	NewTicker(d time.Duration) Ticker
}

// Ticker is the part of *time.Ticker a reaper loop uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock is the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return systemTicker{time.NewTicker(d)}
}

type systemTicker struct{ *time.Ticker }

func (t systemTicker) C() <-chan time.Time { return t.Ticker.C }

// MockClock only moves when told to. Tickers created from it fire during
// Advance.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers map[*MockTicker]struct{}
}

// NewMockClock returns a MockClock reading start.
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{now: start, tickers: make(map[*MockTicker]struct{})}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Set jumps to t. Tickers are not fired.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and delivers at most one tick to
// each running ticker whose deadline has passed.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	due := make([]*MockTicker, 0, len(c.tickers))
	for t := range c.tickers {
		due = append(due, t)
	}
	c.mu.Unlock()

	for _, t := range due {
		t.fire(now)
	}
}

// TickerCount is the number of tickers not yet stopped, so tests can wait
// for a loop to reach its select.
func (c *MockClock) TickerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

func (c *MockClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("timeutil: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &MockTicker{
		clock:    c,
		ch:       make(chan time.Time, 1),
		interval: d,
		next:     c.now.Add(d),
	}
	c.tickers[t] = struct{}{}
	return t
}

// MockTicker drops ticks while its one-slot channel is full, as
// time.Ticker does for slow readers.
type MockTicker struct {
	clock    *MockClock
	ch       chan time.Time
	interval time.Duration

	mu   sync.Mutex
	next time.Time
}

func (t *MockTicker) C() <-chan time.Time { return t.ch }

func (t *MockTicker) Stop() {
	t.clock.mu.Lock()
	delete(t.clock.tickers, t)
	t.clock.mu.Unlock()
}

func (t *MockTicker) fire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if now.Before(t.next) {
		return
	}
	select {
	case t.ch <- now:
	default:
	}
	// Skip the deadlines the jump passed over.
	for !t.next.After(now) {
		t.next = t.next.Add(t.interval)
	}
}
