package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/workoutwise/formcheck/internal/exercise"
	"github.com/workoutwise/formcheck/internal/httputil"
	"github.com/workoutwise/formcheck/internal/pose"
	"github.com/workoutwise/formcheck/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16 << 10,
	WriteBufferSize: 16 << 10,
	CheckOrigin: func(r *http.Request) bool {
		return true // pose clients run from file:// pages and native apps
	},
}

// wsMaxMessage bounds one client message; a landmark frame is ~3KB.
const wsMaxMessage = 64 << 10

// wsWriteTimeout bounds each write to a slow client.
const wsWriteTimeout = 5 * time.Second

// wsRequest is either a frame, or {"action":"finish"} to end the session.
type wsRequest struct {
	Action    string          `json:"action,omitempty"`
	Landmarks []pose.Landmark `json:"landmarks"`
}

// wsResponse types: started, frame, summary, error
type wsResponse struct {
	Type    string               `json:"type"`
	ID      string               `json:"id,omitempty"`
	Result  *session.FrameResult `json:"result,omitempty"`
	Status  *session.Summary     `json:"status,omitempty"`
	Message string               `json:"message,omitempty"`
}

// streamSession runs a live session over a websocket: the client sends one
// frame per message and receives the frame result and live status for each.
// Browsers cannot set headers on websocket requests, so the user may also
// be given as ?user_id=.
func (s *Server) streamSession(w http.ResponseWriter, r *http.Request) {
	kind, err := exercise.ParseKind(r.URL.Query().Get("exercise"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	user := r.Header.Get(UserHeader)
	if user == "" {
		user = r.URL.Query().Get("user_id")
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxMessage)

	e, err := s.newLive(kind, user)
	if err != nil {
		writeWS(conn, wsResponse{Type: "error", Message: err.Error()})
		return
	}
	id := e.sess.ID()
	if err := writeWS(conn, wsResponse{Type: "started", ID: id}); err != nil {
		s.abandon(id)
		return
	}

	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				log.Printf("session %s: websocket read error: %v", id, err)
			}
			s.abandon(id)
			return
		}

		switch req.Action {
		case "":
		case "finish":
			if _, ok := s.live.remove(id); !ok {
				writeWS(conn, wsResponse{Type: "error", ID: id, Message: "session already closed"})
				return
			}
			sum, err := s.closeLive(e, "finished by client")
			if err != nil {
				log.Printf("session %s: %v", id, err)
			}
			writeWS(conn, wsResponse{Type: "summary", ID: id, Status: &sum})
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "finished"),
				time.Now().Add(wsWriteTimeout))
			return
		default:
			if err := writeWS(conn, wsResponse{Type: "error", ID: id, Message: "unknown action " + req.Action}); err != nil {
				s.abandon(id)
				return
			}
			continue
		}

		if _, ok := s.live.get(id); !ok {
			writeWS(conn, wsResponse{Type: "error", ID: id, Message: "session closed by server"})
			return
		}
		e.mu.Lock()
		res := s.process(e.sess, pose.Frame{Landmarks: req.Landmarks})
		status := e.sess.Status()
		e.mu.Unlock()
		s.publishStatus(status)

		if err := writeWS(conn, wsResponse{Type: "frame", ID: id, Result: &res, Status: &status}); err != nil {
			log.Printf("session %s: websocket write error: %v", id, err)
			s.abandon(id)
			return
		}
	}
}

// abandon finishes a session whose client went away, if it is still open.
func (s *Server) abandon(id string) {
	if e, ok := s.live.remove(id); ok {
		s.closeLive(e, "client disconnected")
	}
}

func writeWS(conn *websocket.Conn, msg wsResponse) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(msg)
}
