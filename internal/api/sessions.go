package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/workoutwise/formcheck/internal/db"
	"github.com/workoutwise/formcheck/internal/exercise"
	"github.com/workoutwise/formcheck/internal/httputil"
	"github.com/workoutwise/formcheck/internal/pose"
	"github.com/workoutwise/formcheck/internal/session"
)

type createSessionRequest struct {
	Exercise string `json:"exercise"`
}

type createSessionResponse struct {
	ID       string        `json:"id"`
	Exercise exercise.Kind `json:"exercise"`
	Mode     session.Mode  `json:"mode"`
}

type frameResponse struct {
	Result session.FrameResult `json:"result"`
	Status session.Summary     `json:"status"`
}

type historyResponse struct {
	Sessions []session.Summary `json:"sessions"`
}

// newLive starts a live session and registers it.
func (s *Server) newLive(kind exercise.Kind, userID string) (*liveSession, error) {
	sess, err := session.New(s.models, session.Config{
		Kind:    kind,
		Mode:    session.Live,
		UserID:  userID,
		Options: s.options,
		Clock:   s.clock,
	})
	if err != nil {
		return nil, err
	}
	s.metrics.SessionStarted(kind, session.Live)
	log.Printf("started %s session %s for user %q", kind, sess.ID(), userID)
	return s.live.add(sess), nil
}

// closeLive finishes a session already removed from the registry.
func (s *Server) closeLive(e *liveSession, reason string) (session.Summary, error) {
	e.mu.Lock()
	sum, err := e.sess.Finish()
	e.mu.Unlock()
	if err != nil {
		return session.Summary{}, err
	}
	log.Printf("finished session %s (%s)", sum.ID, reason)
	s.publishStatus(sum)
	return sum, s.record(sum)
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	kind, err := exercise.ParseKind(req.Exercise)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	e, err := s.newLive(kind, r.Header.Get(UserHeader))
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, createSessionResponse{
		ID:       e.sess.ID(),
		Exercise: kind,
		Mode:     session.Live,
	})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*liveSession, bool) {
	id := r.PathValue("id")
	e, ok := s.live.get(id)
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("no open session %q", id))
	}
	return e, ok
}

func (s *Server) postFrame(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var frame pose.Frame
	if err := httputil.DecodeJSON(w, r, &frame); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	e.mu.Lock()
	res := s.process(e.sess, frame)
	status := e.sess.Status()
	e.mu.Unlock()

	if res.Outcome == session.OutcomeRejected {
		httputil.WriteJSON(w, http.StatusConflict, frameResponse{Result: res, Status: status})
		return
	}
	s.publishStatus(status)
	httputil.WriteJSONOK(w, frameResponse{Result: res, Status: status})
}

func (s *Server) sessionStatus(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	e.mu.Lock()
	status := e.sess.Status()
	e.mu.Unlock()
	httputil.WriteJSONOK(w, status)
}

func (s *Server) sessionTimeline(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	e.mu.Lock()
	points := e.sess.Timeline()
	e.mu.Unlock()
	httputil.WriteJSONOK(w, points)
}

func (s *Server) finishSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	e, ok := s.live.remove(id)
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("no open session %q", id))
		return
	}
	sum, err := s.closeLive(e, "finished by client")
	switch {
	case errors.Is(err, session.ErrFinished):
		httputil.WriteJSONError(w, http.StatusConflict, err.Error())
	case err != nil:
		httputil.InternalServerError(w, fmt.Sprintf("session finished but not saved: %v", err))
	default:
		httputil.WriteJSONOK(w, sum)
	}
}

// analyze runs a whole recording through a batch session and stores the
// result for the calling user.
func (s *Server) analyze(kind exercise.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := r.Header.Get(UserHeader)
		if user == "" {
			httputil.BadRequest(w, "missing "+UserHeader+" header")
			return
		}
		var req pose.Recording
		if err := httputil.DecodeJSON(w, r, &req); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if len(req.Frames) == 0 {
			httputil.BadRequest(w, "recording has no frames")
			return
		}
		sess, err := session.New(s.models, session.Config{
			Kind:       kind,
			Mode:       session.Batch,
			UserID:     user,
			Options:    s.options,
			Clock:      s.clock,
			FPS:        req.FPS,
			FrameCount: req.FrameCount,
		})
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		s.metrics.SessionStarted(kind, session.Batch)

		for _, frame := range req.Frames {
			s.process(sess, frame)
		}
		sum, err := sess.Finish()
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		log.Printf("analyzed %s recording for user %q: %d frames, %d skipped",
			kind, user, sum.Diagnostics.Frames, sum.Diagnostics.Skipped())
		if err := s.record(sum); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("analysis finished but not saved: %v", err))
			return
		}
		httputil.WriteJSONOK(w, sum)
	}
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	user := r.Header.Get(UserHeader)
	if user == "" {
		httputil.BadRequest(w, "missing "+UserHeader+" header")
		return
	}
	if s.store == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "history is not available without a database")
		return
	}
	limit := db.DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = n
	}
	sessions, err := s.store.ListSessions(user, limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, historyResponse{Sessions: sessions})
}
