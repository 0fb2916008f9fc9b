// Package testutil provides shared test utilities and fixtures.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/workoutwise/formcheck/internal/pose"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewJSONRequest creates a test request with body encoded as JSON. A nil
// body sends no body at all.
func NewJSONRequest(t testing.TB, method, path string, body interface{}) *http.Request {
	t.Helper()
	if body == nil {
		return httptest.NewRequest(method, path, nil)
	}
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to encode request body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DecodeJSON decodes a recorded response body into a T.
func DecodeJSON[T any](t testing.TB, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

// Stance widths of StanceFrame, as fractions of the image width. They give a
// foot/shoulder ratio of 2.5 and a knee/foot ratio of 0.8, which grade as
// correct at every squat stage.
const (
	StanceShoulderWidth = 0.2
	StanceKneeWidth     = 0.4
	StanceFootWidth     = 0.5
)

// StanceFrame returns a fully visible standing pose with the stance widths
// above, centred in the image.
func StanceFrame() pose.Frame {
	return StanceFrameWithVisibility(0.99)
}

// StanceFrameWithVisibility is StanceFrame with every landmark at the given
// visibility.
func StanceFrameWithVisibility(v float64) pose.Frame {
	lms := make([]pose.Landmark, pose.NumLandmarks)
	for i := range lms {
		lms[i] = pose.Landmark{X: 0.5, Y: 0.5, Visibility: v}
	}
	set := func(l, r pose.LandmarkID, width, y float64) {
		lms[l] = pose.Landmark{X: 0.5 + width/2, Y: y, Visibility: v}
		lms[r] = pose.Landmark{X: 0.5 - width/2, Y: y, Visibility: v}
	}
	set(pose.LeftShoulder, pose.RightShoulder, StanceShoulderWidth, 0.3)
	set(pose.LeftKnee, pose.RightKnee, StanceKneeWidth, 0.7)
	set(pose.LeftFootIndex, pose.RightFootIndex, StanceFootWidth, 0.95)
	return pose.Frame{Landmarks: lms}
}

// EmptyFrame is a frame in which no person was detected.
func EmptyFrame() pose.Frame {
	return pose.Frame{}
}
