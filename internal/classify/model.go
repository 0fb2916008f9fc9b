// Package classify holds the per-frame classifier adapter and the confidence
// gate applied to its output.
package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/workoutwise/formcheck/internal/pose"
)

// ErrInvalidModel is returned when a model file is internally inconsistent.
var ErrInvalidModel = errors.New("invalid model")

// maxModelFileSize bounds model files read from disk.
const maxModelFileSize = 4 * 1024 * 1024

// Prediction is a classifier's verdict for one feature vector.
type Prediction struct {
	Class         int       `json:"class"`
	Probabilities []float64 `json:"probabilities"`
}

// Confidence is the probability of the predicted class.
func (p Prediction) Confidence() float64 {
	if p.Class < 0 || p.Class >= len(p.Probabilities) {
		return 0
	}
	return p.Probabilities[p.Class]
}

// Classifier maps a feature vector to a prediction. Implementations must be
// safe for concurrent use by many sessions.
type Classifier interface {
	// InputWidth is the number of features Classify expects.
	InputWidth() int
	Classify(features []float64) (Prediction, error)
}

// ModelSpec is the on-disk form of a standardised logistic-regression model:
// features are scaled as (x-mean)/scale, then each class scores coef·x+b.
// A single coefficient row describes a binary model.
type ModelSpec struct {
	Name      string      `json:"name"`
	Schema    string      `json:"schema"`
	Mean      []float64   `json:"scaler_mean"`
	Scale     []float64   `json:"scaler_scale"`
	Coef      [][]float64 `json:"coef"`
	Intercept []float64   `json:"intercept"`
}

// Model is an immutable, loaded classifier. It is never mutated after
// NewModel returns.
type Model struct {
	name      string
	schema    string
	mean      []float64
	scale     []float64
	coef      *mat.Dense
	intercept *mat.VecDense
}

// NewModel validates spec and builds a Model from it.
func NewModel(spec ModelSpec) (*Model, error) {
	width := len(spec.Mean)
	rows := len(spec.Coef)
	if width == 0 || rows == 0 {
		return nil, fmt.Errorf("%w: empty scaler or coefficients", ErrInvalidModel)
	}
	if len(spec.Scale) != width {
		return nil, fmt.Errorf("%w: scaler_scale has %d entries, scaler_mean %d", ErrInvalidModel, len(spec.Scale), width)
	}
	if len(spec.Intercept) != rows {
		return nil, fmt.Errorf("%w: %d intercepts for %d coefficient rows", ErrInvalidModel, len(spec.Intercept), rows)
	}
	for i, s := range spec.Scale {
		if s == 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("%w: scaler_scale[%d] = %v", ErrInvalidModel, i, s)
		}
	}

	data := make([]float64, 0, rows*width)
	for r, row := range spec.Coef {
		if len(row) != width {
			return nil, fmt.Errorf("%w: coef row %d has %d entries, want %d", ErrInvalidModel, r, len(row), width)
		}
		data = append(data, row...)
	}

	m := &Model{
		name:      spec.Name,
		schema:    spec.Schema,
		mean:      append([]float64(nil), spec.Mean...),
		scale:     append([]float64(nil), spec.Scale...),
		coef:      mat.NewDense(rows, width, data),
		intercept: mat.NewVecDense(rows, append([]float64(nil), spec.Intercept...)),
	}
	return m, nil
}

// LoadModel reads a JSON ModelSpec from path.
func LoadModel(path string) (*Model, error) {
	if filepath.Ext(path) != ".json" {
		return nil, fmt.Errorf("model file must have .json extension, got: %s", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat model file: %w", err)
	}
	if info.Size() > maxModelFileSize {
		return nil, fmt.Errorf("model file too large: %d bytes (max %d)", info.Size(), maxModelFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	var spec ModelSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse model JSON: %w", err)
	}
	m, err := NewModel(spec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Name identifies the model, e.g. "plank-lr-v2".
func (m *Model) Name() string { return m.name }

// Schema is the feature schema the model was trained on.
func (m *Model) Schema() string { return m.schema }

// InputWidth implements Classifier.
func (m *Model) InputWidth() int { return len(m.mean) }

// Classes is the number of output classes.
func (m *Model) Classes() int {
	rows, _ := m.coef.Dims()
	if rows == 1 {
		return 2
	}
	return rows
}

// CheckSchema reports whether the model can consume features built by s.
func (m *Model) CheckSchema(s pose.Schema) error {
	if m.schema != "" && m.schema != s.Name {
		return fmt.Errorf("%w: model %q was trained on %q features, not %q", pose.ErrSchemaMismatch, m.name, m.schema, s.Name)
	}
	return s.Assert(m.InputWidth())
}

// Classify implements Classifier.
func (m *Model) Classify(features []float64) (Prediction, error) {
	width := m.InputWidth()
	if len(features) != width {
		return Prediction{}, fmt.Errorf("%w: got %d features, want %d", pose.ErrSchemaMismatch, len(features), width)
	}

	x := mat.NewVecDense(width, nil)
	for i, v := range features {
		x.SetVec(i, (v-m.mean[i])/m.scale[i])
	}
	var z mat.VecDense
	z.MulVec(m.coef, x)
	z.AddVec(&z, m.intercept)

	var probs []float64
	if z.Len() == 1 {
		p := sigmoid(z.AtVec(0))
		probs = []float64{1 - p, p}
	} else {
		probs = softmax(mat.Col(nil, 0, &z))
	}
	return Prediction{Class: floats.MaxIdx(probs), Probabilities: probs}, nil
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}

func softmax(scores []float64) []float64 {
	out := make([]float64, len(scores))
	peak := floats.Max(scores)
	for i, s := range scores {
		out[i] = math.Exp(s - peak)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}
