package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workoutwise/formcheck/internal/exercise"
	"github.com/workoutwise/formcheck/internal/session"
	"github.com/workoutwise/formcheck/internal/testutil"
)

func dialSession(t *testing.T, env *testEnv, query string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(LoggingMiddleware(env.mux))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) wsResponse {
	t.Helper()
	var msg wsResponse
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestStreamSession(t *testing.T) {
	env := newTestEnv(t)
	conn := dialSession(t, env, "?exercise=squat&user_id=carol")

	started := readWS(t, conn)
	require.Equal(t, "started", started.Type)
	require.NotEmpty(t, started.ID)

	for i := 0; i < 4; i++ {
		require.NoError(t, conn.WriteJSON(wsRequest{Landmarks: testutil.StanceFrame().Landmarks}))
		msg := readWS(t, conn)
		require.Equal(t, "frame", msg.Type, msg.Message)
		require.NotNil(t, msg.Result)
		require.NotNil(t, msg.Status)
		assert.Equal(t, i, msg.Result.Index)
		assert.Equal(t, (i+1)/2, msg.Status.RepCount)
	}

	require.NoError(t, conn.WriteJSON(wsRequest{Action: "finish"}))
	summary := readWS(t, conn)
	require.Equal(t, "summary", summary.Type)
	require.NotNil(t, summary.Status)
	assert.True(t, summary.Status.Final())
	assert.Equal(t, 2, summary.Status.RepCount)
	assert.Equal(t, exercise.Squat, summary.Status.Exercise)

	stored, err := env.store.GetSession(started.ID)
	require.NoError(t, err)
	assert.Equal(t, "carol", stored.UserID)
	assert.Equal(t, session.Live, stored.Mode)
	assert.Equal(t, 0, env.server.live.len())
}

func TestStreamSession_UnknownAction(t *testing.T) {
	env := newTestEnv(t)
	conn := dialSession(t, env, "?exercise=plank")
	started := readWS(t, conn)

	require.NoError(t, conn.WriteJSON(wsRequest{Action: "pause"}))
	msg := readWS(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Message, "pause")

	// The session stays open after a bad message.
	require.NoError(t, conn.WriteJSON(wsRequest{Landmarks: testutil.StanceFrame().Landmarks}))
	msg = readWS(t, conn)
	assert.Equal(t, "frame", msg.Type)
	assert.Equal(t, started.ID, msg.ID)
}

func TestStreamSession_DisconnectFinishesSession(t *testing.T) {
	env := newTestEnv(t)
	conn := dialSession(t, env, "?exercise=plank")
	started := readWS(t, conn)
	conn.Close()

	require.Eventually(t, func() bool {
		_, err := env.store.GetSession(started.ID)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, env.server.live.len())
}

func TestStreamSession_RejectsUnknownExercise(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.mux)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/ws?exercise=lunge"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, env.server.live.len())
}
