package api

import (
	"sync"
	"time"

	"github.com/workoutwise/formcheck/internal/session"
	"github.com/workoutwise/formcheck/internal/timeutil"
)

// liveSession serializes access to one session; sessions themselves are
// not safe for concurrent use.
type liveSession struct {
	mu   sync.Mutex
	sess session.Session

	lastSeen time.Time // guarded by registry.mu
}

// registry tracks open live sessions by id.
type registry struct {
	clock    timeutil.Clock
	mu       sync.Mutex
	sessions map[string]*liveSession
}

func newRegistry(clock timeutil.Clock) *registry {
	return &registry{clock: clock, sessions: make(map[string]*liveSession)}
}

func (r *registry) add(sess session.Session) *liveSession {
	e := &liveSession{sess: sess, lastSeen: r.clock.Now()}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID()] = e
	return e
}

// get returns the session and marks it as recently used.
func (r *registry) get(id string) (*liveSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if ok {
		e.lastSeen = r.clock.Now()
	}
	return e, ok
}

func (r *registry) remove(id string) (*liveSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	return e, ok
}

// idle removes and returns the sessions unused for at least timeout.
func (r *registry) idle(timeout time.Duration) []*liveSession {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*liveSession
	for id, e := range r.sessions {
		if now.Sub(e.lastSeen) >= timeout {
			out = append(out, e)
			delete(r.sessions, id)
		}
	}
	return out
}

// drain removes and returns every session.
func (r *registry) drain() []*liveSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*liveSession, 0, len(r.sessions))
	for id, e := range r.sessions {
		out = append(out, e)
		delete(r.sessions, id)
	}
	return out
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
