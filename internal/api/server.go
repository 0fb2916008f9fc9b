package api

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/workoutwise/formcheck/internal/exercise"
	"github.com/workoutwise/formcheck/internal/httputil"
	"github.com/workoutwise/formcheck/internal/metrics"
	"github.com/workoutwise/formcheck/internal/pose"
	"github.com/workoutwise/formcheck/internal/publish"
	"github.com/workoutwise/formcheck/internal/session"
	"github.com/workoutwise/formcheck/internal/timeutil"
	"github.com/workoutwise/formcheck/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// UserHeader identifies the caller on analysis and history endpoints.
const UserHeader = "X-User-Id"

// DefaultIdleTimeout is how long a live session may go without frames
// before the reaper finishes it.
const DefaultIdleTimeout = 5 * time.Minute

// Store persists finished session summaries. *db.DB implements it.
type Store interface {
	RecordSession(s session.Summary) error
	ListSessions(userID string, limit int) ([]session.Summary, error)
}

// Config wires the server's collaborators. Only Models is required.
type Config struct {
	Models  session.Models
	Options session.Options
	// Store is optional; without it summaries are not persisted and
	// /api/history answers 503.
	Store     Store
	Metrics   *metrics.Metrics
	Publisher publish.Publisher
	Clock     timeutil.Clock
	// IdleTimeout applies to live sessions; zero means DefaultIdleTimeout.
	IdleTimeout time.Duration
}

type Server struct {
	models      session.Models
	options     session.Options
	store       Store
	metrics     *metrics.Metrics
	publisher   publish.Publisher
	clock       timeutil.Clock
	idleTimeout time.Duration
	live        *registry
}

func NewServer(cfg Config) *Server {
	s := &Server{
		models:      cfg.Models,
		options:     cfg.Options,
		store:       cfg.Store,
		metrics:     cfg.Metrics,
		publisher:   cfg.Publisher,
		clock:       cfg.Clock,
		idleTimeout: cfg.IdleTimeout,
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.publisher == nil {
		s.publisher = publish.Nop{}
	}
	if s.clock == nil {
		s.clock = timeutil.RealClock{}
	}
	if s.idleTimeout <= 0 {
		s.idleTimeout = DefaultIdleTimeout
	}
	s.live = newRegistry(s.clock)
	return s
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack lets the websocket upgrade take over the connection.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	lrw.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 100 && statusCode < 200:
		return colorCyan + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, user, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		user := r.Header.Get(UserHeader)
		if user == "" {
			user = "-"
		}
		log.Printf(
			"[%s] %s %s%s%s user=%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset, user,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.Handle("GET /metrics", s.metrics.Handler())

	mux.HandleFunc("POST /api/plank/analyze", s.analyze(exercise.Plank))
	mux.HandleFunc("POST /api/squat/analyze", s.analyze(exercise.Squat))
	mux.HandleFunc("GET /api/history", s.history)

	mux.HandleFunc("POST /api/sessions", s.createSession)
	mux.HandleFunc("GET /api/sessions/ws", s.streamSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.sessionStatus)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.finishSession)
	mux.HandleFunc("POST /api/sessions/{id}/frames", s.postFrame)
	mux.HandleFunc("GET /api/sessions/{id}/timeline", s.sessionTimeline)
	mux.HandleFunc("GET /api/sessions/{id}/chart", s.sessionChart)
	return mux
}

// Run reaps idle live sessions until ctx is done, then finishes every
// session still open so none is lost on shutdown.
func (s *Server) Run(ctx context.Context) {
	interval := s.idleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			for _, e := range s.live.drain() {
				s.closeLive(e, "shutdown")
			}
			return
		case <-ticker.C():
			s.reapIdle()
		}
	}
}

// reapIdle finishes the live sessions that have gone quiet and returns
// how many it closed.
func (s *Server) reapIdle() int {
	idle := s.live.idle(s.idleTimeout)
	for _, e := range idle {
		s.closeLive(e, "idle")
	}
	return len(idle)
}

type healthResponse struct {
	Status         string       `json:"status"`
	Version        version.Info `json:"version"`
	Timestamp      time.Time    `json:"timestamp"`
	ActiveSessions int          `json:"active_sessions"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, healthResponse{
		Status:         "ok",
		Version:        version.Get(),
		Timestamp:      s.clock.Now().UTC(),
		ActiveSessions: s.live.len(),
	})
}

// record persists a final summary and folds it into the metrics.
func (s *Server) record(sum session.Summary) error {
	s.metrics.SessionFinished(sum)
	if s.store == nil {
		return nil
	}
	if err := s.store.RecordSession(sum); err != nil {
		log.Printf("failed to persist session %s: %v", sum.ID, err)
		return err
	}
	return nil
}

// process runs one frame and counts it.
func (s *Server) process(sess session.Session, frame pose.Frame) session.FrameResult {
	start := time.Now()
	res := sess.Process(frame)
	s.metrics.ObserveFrame(sess.Kind(), res, time.Since(start))
	return res
}

// publishStatus hands a live status to the publisher without failing the
// request when delivery fails.
func (s *Server) publishStatus(sum session.Summary) {
	if err := s.publisher.Publish(sum); err != nil {
		s.metrics.StatusPublishErrors.Add(1)
		log.Printf("failed to publish status for session %s: %v", sum.ID, err)
		return
	}
	s.metrics.StatusPublished.Add(1)
}
