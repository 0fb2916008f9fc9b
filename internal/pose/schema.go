package pose

import (
	"errors"
	"fmt"
)

// FieldsPerLandmark is the number of values each landmark contributes to a
// feature vector, in the order x, y, z, visibility.
const FieldsPerLandmark = 4

// ErrSchemaMismatch is returned when a model's input width does not match the
// feature schema it is paired with.
var ErrSchemaMismatch = errors.New("feature schema mismatch")

// Schema is an ordered landmark subset. The order is positional and must
// match the order the classifier was trained with.
type Schema struct {
	Name      string
	Landmarks []LandmarkID
}

// PlankSchema is the 17-landmark, 68-feature layout of the plank classifier.
var PlankSchema = Schema{
	Name: "plank",
	Landmarks: []LandmarkID{
		Nose, LeftShoulder, RightShoulder, LeftElbow, RightElbow,
		LeftWrist, RightWrist, LeftHip, RightHip, LeftKnee, RightKnee,
		LeftAnkle, RightAnkle, LeftHeel, RightHeel, LeftFootIndex, RightFootIndex,
	},
}

// SquatSchema is the 9-landmark, 36-feature layout of the squat stage
// classifier.
var SquatSchema = Schema{
	Name: "squat",
	Landmarks: []LandmarkID{
		Nose, LeftShoulder, RightShoulder,
		LeftHip, RightHip, LeftKnee, RightKnee,
		LeftAnkle, RightAnkle,
	},
}

// Width is the length of feature vectors produced by the schema.
func (s Schema) Width() int {
	return len(s.Landmarks) * FieldsPerLandmark
}

// Columns returns the training-time column names, e.g. "nose_x".
func (s Schema) Columns() []string {
	cols := make([]string, 0, s.Width())
	for _, id := range s.Landmarks {
		p := columnPrefix(id)
		cols = append(cols, p+"_x", p+"_y", p+"_z", p+"_v")
	}
	return cols
}

// Assert checks that a model expecting width inputs can consume this schema.
func (s Schema) Assert(width int) error {
	if width != s.Width() {
		return fmt.Errorf("%w: %s schema has %d features, model expects %d", ErrSchemaMismatch, s.Name, s.Width(), width)
	}
	return nil
}

// FeatureVector is a flattened landmark subset tagged with the schema that
// produced it.
type FeatureVector struct {
	Schema string
	Values []float64
}

// Extract flattens lms into the schema's feature layout.
func (s Schema) Extract(lms []Landmark) (FeatureVector, error) {
	if err := CheckLandmarks(lms); err != nil {
		return FeatureVector{}, err
	}
	values := make([]float64, 0, s.Width())
	for _, id := range s.Landmarks {
		lm := lms[id]
		values = append(values, lm.X, lm.Y, lm.Z, lm.Visibility)
	}
	return FeatureVector{Schema: s.Name, Values: values}, nil
}
