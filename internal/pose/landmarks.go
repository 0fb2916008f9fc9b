// Package pose describes the body landmarks produced by the upstream pose
// estimator and the fixed, ordered feature layouts the classifiers were
// trained on.
package pose

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// LandmarkID indexes a landmark in the 33-point MediaPipe pose topology.
type LandmarkID int

// MediaPipe pose landmark indices.
const (
	Nose LandmarkID = iota
	LeftEyeInner
	LeftEye
	LeftEyeOuter
	RightEyeInner
	RightEye
	RightEyeOuter
	LeftEar
	RightEar
	MouthLeft
	MouthRight
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftPinky
	RightPinky
	LeftIndex
	RightIndex
	LeftThumb
	RightThumb
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	LeftHeel
	RightHeel
	LeftFootIndex
	RightFootIndex

	NumLandmarks = 33
)

var landmarkNames = [NumLandmarks]string{
	"NOSE", "LEFT_EYE_INNER", "LEFT_EYE", "LEFT_EYE_OUTER",
	"RIGHT_EYE_INNER", "RIGHT_EYE", "RIGHT_EYE_OUTER",
	"LEFT_EAR", "RIGHT_EAR", "MOUTH_LEFT", "MOUTH_RIGHT",
	"LEFT_SHOULDER", "RIGHT_SHOULDER", "LEFT_ELBOW", "RIGHT_ELBOW",
	"LEFT_WRIST", "RIGHT_WRIST", "LEFT_PINKY", "RIGHT_PINKY",
	"LEFT_INDEX", "RIGHT_INDEX", "LEFT_THUMB", "RIGHT_THUMB",
	"LEFT_HIP", "RIGHT_HIP", "LEFT_KNEE", "RIGHT_KNEE",
	"LEFT_ANKLE", "RIGHT_ANKLE", "LEFT_HEEL", "RIGHT_HEEL",
	"LEFT_FOOT_INDEX", "RIGHT_FOOT_INDEX",
}

// String returns the MediaPipe name of the landmark.
func (id LandmarkID) String() string {
	if id < 0 || int(id) >= NumLandmarks {
		return fmt.Sprintf("LANDMARK_%d", int(id))
	}
	return landmarkNames[id]
}

// ErrMalformedLandmarks is returned when a frame's landmark list cannot be
// turned into features: wrong length or non-finite values.
var ErrMalformedLandmarks = errors.New("malformed landmark set")

// Landmark is one estimated body point in normalized image coordinates.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// Frame is one unit of pose-source output. A nil Landmarks slice means no
// person was detected in the frame.
type Frame struct {
	Landmarks []Landmark `json:"landmarks"`
}

// Detected reports whether the pose source found a person in the frame.
func (f Frame) Detected() bool {
	return f.Landmarks != nil
}

// CheckLandmarks verifies that lms is a complete, finite landmark set.
func CheckLandmarks(lms []Landmark) error {
	if len(lms) != NumLandmarks {
		return fmt.Errorf("%w: got %d landmarks, want %d", ErrMalformedLandmarks, len(lms), NumLandmarks)
	}
	for i, lm := range lms {
		if !finite(lm.X) || !finite(lm.Y) || !finite(lm.Z) || !finite(lm.Visibility) {
			return fmt.Errorf("%w: %s has a non-finite value", ErrMalformedLandmarks, LandmarkID(i))
		}
	}
	return nil
}

// Distance2D is the Euclidean distance between two landmarks in the image
// plane. Depth and visibility are ignored.
func Distance2D(a, b Landmark) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	return math.Sqrt(dx*dx + dy*dy)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func columnPrefix(id LandmarkID) string {
	return strings.ToLower(id.String())
}
