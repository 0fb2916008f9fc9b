package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the canonical form-analysis defaults file.
const DefaultConfigPath = "config/formcheck.defaults.json"

// KneeStages are the squat stages that may carry their own knee/foot band.
var KneeStages = []string{"up", "middle", "down"}

// FormConfig holds the smoothing and grading parameters of a form-analysis
// session. Every field is optional; the Get* methods supply defaults for
// fields left unset, so partial files are safe.
type FormConfig struct {
	// Plank
	PlankConfidenceThreshold *float64 `json:"plank_confidence_threshold,omitempty" yaml:"plank_confidence_threshold,omitempty"`
	PlankWindowSize          *int     `json:"plank_window_size,omitempty" yaml:"plank_window_size,omitempty"`

	// Squat stage
	SquatConfidenceThreshold *float64 `json:"squat_confidence_threshold,omitempty" yaml:"squat_confidence_threshold,omitempty"`
	SquatStageThreshold      *float64 `json:"squat_stage_threshold,omitempty" yaml:"squat_stage_threshold,omitempty"`
	SquatStageWindowSize     *int     `json:"squat_stage_window_size,omitempty" yaml:"squat_stage_window_size,omitempty"`
	SquatProbabilityDecimals *int     `json:"squat_probability_decimals,omitempty" yaml:"squat_probability_decimals,omitempty"`

	// Squat placement
	PlacementWindowSize *int                  `json:"placement_window_size,omitempty" yaml:"placement_window_size,omitempty"`
	VisibilityFloor     *float64              `json:"visibility_floor,omitempty" yaml:"visibility_floor,omitempty"`
	FootShoulderRatio   *[2]float64           `json:"foot_shoulder_ratio,omitempty" yaml:"foot_shoulder_ratio,omitempty"`
	KneeFootRatio       map[string][2]float64 `json:"knee_foot_ratio,omitempty" yaml:"knee_foot_ratio,omitempty"`
	KneeFootFallback    *[2]float64           `json:"knee_foot_fallback,omitempty" yaml:"knee_foot_fallback,omitempty"`

	// Live sessions
	LiveTimelineLimit *int `json:"live_timeline_limit,omitempty" yaml:"live_timeline_limit,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrBand(lo, hi float64) *[2]float64 {
	b := [2]float64{lo, hi}
	return &b
}

// EmptyFormConfig returns a FormConfig with all fields unset.
func EmptyFormConfig() *FormConfig {
	return &FormConfig{}
}

// DefaultFormConfig returns a FormConfig with every field set to its default.
func DefaultFormConfig() *FormConfig {
	return &FormConfig{
		PlankConfidenceThreshold: ptrFloat64(0.6),
		PlankWindowSize:          ptrInt(5),
		SquatConfidenceThreshold: ptrFloat64(0),
		SquatStageThreshold:      ptrFloat64(0.7),
		SquatStageWindowSize:     ptrInt(1),
		SquatProbabilityDecimals: ptrInt(2),
		PlacementWindowSize:      ptrInt(5),
		VisibilityFloor:          ptrFloat64(0.6),
		FootShoulderRatio:        ptrBand(1.2, 2.8),
		KneeFootRatio:            defaultKneeFootRatio(),
		KneeFootFallback:         ptrBand(0, 100),
		LiveTimelineLimit:        ptrInt(600),
	}
}

func defaultKneeFootRatio() map[string][2]float64 {
	return map[string][2]float64{
		"up":     {0.5, 1.0},
		"middle": {0.7, 1.0},
		"down":   {0.7, 1.1},
	}
}

// LoadFormConfig loads a FormConfig from a .json, .yaml or .yml file.
// The file must be under 1MB.
func LoadFormConfig(path string) (*FormConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyFormConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. Panics if the file cannot
// be loaded, intended for test setup.
func MustLoadDefaultConfig() *FormConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadFormConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *FormConfig) Validate() error {
	probs := []struct {
		name string
		v    *float64
	}{
		{"plank_confidence_threshold", c.PlankConfidenceThreshold},
		{"squat_confidence_threshold", c.SquatConfidenceThreshold},
		{"squat_stage_threshold", c.SquatStageThreshold},
		{"visibility_floor", c.VisibilityFloor},
	}
	for _, p := range probs {
		if p.v != nil && (math.IsNaN(*p.v) || *p.v < 0 || *p.v > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", p.name, *p.v)
		}
	}

	windows := []struct {
		name string
		v    *int
	}{
		{"plank_window_size", c.PlankWindowSize},
		{"squat_stage_window_size", c.SquatStageWindowSize},
		{"placement_window_size", c.PlacementWindowSize},
	}
	for _, w := range windows {
		if w.v != nil && *w.v < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", w.name, *w.v)
		}
	}

	if c.SquatProbabilityDecimals != nil && (*c.SquatProbabilityDecimals < 0 || *c.SquatProbabilityDecimals > 6) {
		return fmt.Errorf("squat_probability_decimals must be between 0 and 6, got %d", *c.SquatProbabilityDecimals)
	}
	if c.LiveTimelineLimit != nil && *c.LiveTimelineLimit < 0 {
		return fmt.Errorf("live_timeline_limit must be non-negative, got %d", *c.LiveTimelineLimit)
	}

	if c.FootShoulderRatio != nil {
		if err := validateBand("foot_shoulder_ratio", *c.FootShoulderRatio); err != nil {
			return err
		}
	}
	if c.KneeFootFallback != nil {
		if err := validateBand("knee_foot_fallback", *c.KneeFootFallback); err != nil {
			return err
		}
	}
	stages := make([]string, 0, len(c.KneeFootRatio))
	for stage := range c.KneeFootRatio {
		stages = append(stages, stage)
	}
	sort.Strings(stages)
	for _, stage := range stages {
		if !isKneeStage(stage) {
			return fmt.Errorf("knee_foot_ratio has unknown stage %q (want one of %v)", stage, KneeStages)
		}
		if err := validateBand("knee_foot_ratio."+stage, c.KneeFootRatio[stage]); err != nil {
			return err
		}
	}
	return nil
}

func validateBand(name string, b [2]float64) error {
	if math.IsNaN(b[0]) || math.IsNaN(b[1]) || b[0] < 0 || b[0] > b[1] {
		return fmt.Errorf("%s must be [min, max] with 0 <= min <= max, got %v", name, b)
	}
	return nil
}

func isKneeStage(s string) bool {
	for _, k := range KneeStages {
		if k == s {
			return true
		}
	}
	return false
}

// GetPlankConfidenceThreshold returns the plank_confidence_threshold value or the default.
func (c *FormConfig) GetPlankConfidenceThreshold() float64 {
	if c.PlankConfidenceThreshold == nil {
		return 0.6
	}
	return *c.PlankConfidenceThreshold
}

// GetPlankWindowSize returns the plank_window_size value or the default.
func (c *FormConfig) GetPlankWindowSize() int {
	if c.PlankWindowSize == nil {
		return 5
	}
	return *c.PlankWindowSize
}

// GetSquatConfidenceThreshold returns the squat_confidence_threshold value or the default.
func (c *FormConfig) GetSquatConfidenceThreshold() float64 {
	if c.SquatConfidenceThreshold == nil {
		return 0
	}
	return *c.SquatConfidenceThreshold
}

// GetSquatStageThreshold returns the squat_stage_threshold value or the default.
func (c *FormConfig) GetSquatStageThreshold() float64 {
	if c.SquatStageThreshold == nil {
		return 0.7
	}
	return *c.SquatStageThreshold
}

// GetSquatStageWindowSize returns the squat_stage_window_size value or the default.
func (c *FormConfig) GetSquatStageWindowSize() int {
	if c.SquatStageWindowSize == nil {
		return 1
	}
	return *c.SquatStageWindowSize
}

// GetSquatProbabilityDecimals returns the squat_probability_decimals value or the default.
func (c *FormConfig) GetSquatProbabilityDecimals() int {
	if c.SquatProbabilityDecimals == nil {
		return 2
	}
	return *c.SquatProbabilityDecimals
}

// GetPlacementWindowSize returns the placement_window_size value or the default.
func (c *FormConfig) GetPlacementWindowSize() int {
	if c.PlacementWindowSize == nil {
		return 5
	}
	return *c.PlacementWindowSize
}

// GetVisibilityFloor returns the visibility_floor value or the default.
func (c *FormConfig) GetVisibilityFloor() float64 {
	if c.VisibilityFloor == nil {
		return 0.6
	}
	return *c.VisibilityFloor
}

// GetFootShoulderRatio returns the foot_shoulder_ratio band or the default.
func (c *FormConfig) GetFootShoulderRatio() [2]float64 {
	if c.FootShoulderRatio == nil {
		return [2]float64{1.2, 2.8}
	}
	return *c.FootShoulderRatio
}

// GetKneeFootRatio returns the per-stage knee_foot_ratio bands. Stages missing
// from the file keep their default band.
func (c *FormConfig) GetKneeFootRatio() map[string][2]float64 {
	out := defaultKneeFootRatio()
	for stage, band := range c.KneeFootRatio {
		out[stage] = band
	}
	return out
}

// GetKneeFootFallback returns the knee_foot_fallback band or the default.
func (c *FormConfig) GetKneeFootFallback() [2]float64 {
	if c.KneeFootFallback == nil {
		return [2]float64{0, 100}
	}
	return *c.KneeFootFallback
}

// GetLiveTimelineLimit returns the live_timeline_limit value or the default.
func (c *FormConfig) GetLiveTimelineLimit() int {
	if c.LiveTimelineLimit == nil {
		return 600
	}
	return *c.LiveTimelineLimit
}
