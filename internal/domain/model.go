package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Epsilon is the tolerance used for weight-conservation checks. Weights for
// a converted journey must sum to 1 within this tolerance.
const Epsilon = 1e-6

// ModelType enumerates the closed set of weighting strategies. Custom models
// are a tagged variant (local-biased linear), not arbitrary code.
type ModelType string

const (
	ModelFirstTouch    ModelType = "first_touch"
	ModelLastTouch     ModelType = "last_touch"
	ModelLinear        ModelType = "linear"
	ModelTimeDecay     ModelType = "time_decay"
	ModelPositionBased ModelType = "position_based"
	ModelCustom        ModelType = "custom"
)

// CustomStrategyLocalFocused is the only custom strategy currently defined:
// linear weighting with a local-intent bias multiplier, renormalized.
const CustomStrategyLocalFocused = "local_focused"

// Valid reports whether t is a known model type.
func (t ModelType) Valid() bool {
	switch t {
	case ModelFirstTouch, ModelLastTouch, ModelLinear, ModelTimeDecay, ModelPositionBased, ModelCustom:
		return true
	}
	return false
}

// PositionWeights configures the position_based model. The three weights
// must sum to 1 within Epsilon.
type PositionWeights struct {
	First  float64 `json:"first" yaml:"first"`
	Middle float64 `json:"middle" yaml:"middle"`
	Last   float64 `json:"last" yaml:"last"`
}

// ModelConfig holds the tunable parameters of an attribution model.
type ModelConfig struct {
	LookbackWindowDays int              `json:"lookback_window_days" yaml:"lookback_window_days"`
	DecayFactor        float64          `json:"decay_factor,omitempty" yaml:"decay_factor"` // (0,1], time_decay only
	PositionWeights    *PositionWeights `json:"position_weights,omitempty" yaml:"position_weights"`
	CustomStrategy     string           `json:"custom_strategy,omitempty" yaml:"custom_strategy"`
	LocalBias          float64          `json:"local_bias,omitempty" yaml:"local_bias"` // >= 1.0 multiplier
	IgnoreDirect       bool             `json:"ignore_direct" yaml:"ignore_direct"`
}

// ModelPerformance is descriptive metadata recorded against a model by
// external evaluation. The engine reads it for recommendations but never
// computes it.
type ModelPerformance struct {
	Accuracy float64 `json:"accuracy"` // 0-1
	Coverage float64 `json:"coverage"` // 0-1
}

// AttributionModel is a named, versioned weighting strategy. Models are
// immutable snapshots once referenced by a journey's attribution record;
// edits produce a new version.
type AttributionModel struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Type        ModelType        `json:"type"`
	Config      ModelConfig      `json:"config"`
	Performance ModelPerformance `json:"performance"`
	IsDefault   bool             `json:"is_default"`
	IsActive    bool             `json:"is_active"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// ValidationError reports one or more problems with a model configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid model config: %s", strings.Join(e.Problems, "; "))
}

// Validate checks the model's configuration against its type. It returns a
// *ValidationError listing every problem found, or nil.
func (m *AttributionModel) Validate() error {
	var problems []string

	if m.Name == "" {
		problems = append(problems, "name is required")
	}
	if !m.Type.Valid() {
		problems = append(problems, fmt.Sprintf("unknown model type %q", m.Type))
	}
	if m.Config.LookbackWindowDays < 0 {
		problems = append(problems, "lookback_window_days must not be negative")
	}

	switch m.Type {
	case ModelTimeDecay:
		if m.Config.DecayFactor <= 0 || m.Config.DecayFactor > 1 {
			problems = append(problems, "time_decay requires decay_factor in (0,1]")
		}
	case ModelPositionBased:
		pw := m.Config.PositionWeights
		if pw == nil {
			problems = append(problems, "position_based requires position_weights")
		} else {
			sum := pw.First + pw.Middle + pw.Last
			if math.Abs(sum-1.0) > Epsilon {
				problems = append(problems, fmt.Sprintf("position_weights must sum to 1.0, got %.6f", sum))
			}
			if pw.First < 0 || pw.Middle < 0 || pw.Last < 0 {
				problems = append(problems, "position_weights must not be negative")
			}
		}
	case ModelCustom:
		if m.Config.CustomStrategy == "" {
			problems = append(problems, "custom models require a custom_strategy tag")
		} else if m.Config.CustomStrategy != CustomStrategyLocalFocused {
			problems = append(problems, fmt.Sprintf("unknown custom_strategy %q", m.Config.CustomStrategy))
		}
	}

	if m.Config.LocalBias != 0 && m.Config.LocalBias < 1.0 {
		problems = append(problems, "local_bias must be >= 1.0 when set")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// EffectiveLocalBias returns the bias multiplier to apply to local-intent
// touchpoints. Unset (zero) means no bias.
func (m *AttributionModel) EffectiveLocalBias() float64 {
	if m.Config.LocalBias < 1.0 {
		return 1.0
	}
	return m.Config.LocalBias
}
