// Package monitoring holds the diagnostic logger used by the analysis
// packages for skipped frames and setup decisions.
package monitoring

import (
	"fmt"
	"log"
	"sync"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger and returns the one it replaced.
// Passing nil mutes logging.
func SetLogger(f func(format string, v ...interface{})) (previous func(format string, v ...interface{})) {
	previous = Logf
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return previous
	}
	Logf = f
	return previous
}

// Recorder collects formatted log lines. Its Logf method can be installed
// with SetLogger, and is safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	lines []string
}

// Logf formats and records one line.
func (r *Recorder) Logf(format string, v ...interface{}) {
	line := fmt.Sprintf(format, v...)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

// Lines returns a copy of the recorded lines.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}
