package registry

import (
	"context"
	"errors"
	"log"

	"github.com/ignite/attribution-engine/internal/domain"
)

// StandardModels returns the built-in model set registered on first boot.
// The linear model is registered first and therefore becomes the default.
func StandardModels(lookbackDays int) []domain.AttributionModel {
	return []domain.AttributionModel{
		{
			Name: "Linear",
			Type: domain.ModelLinear,
			Config: domain.ModelConfig{
				LookbackWindowDays: lookbackDays,
			},
			Performance: domain.ModelPerformance{Accuracy: 0.70, Coverage: 0.95},
		},
		{
			Name: "First Touch",
			Type: domain.ModelFirstTouch,
			Config: domain.ModelConfig{
				LookbackWindowDays: lookbackDays,
			},
			Performance: domain.ModelPerformance{Accuracy: 0.60, Coverage: 0.95},
		},
		{
			Name: "Last Touch",
			Type: domain.ModelLastTouch,
			Config: domain.ModelConfig{
				LookbackWindowDays: lookbackDays,
			},
			Performance: domain.ModelPerformance{Accuracy: 0.65, Coverage: 0.95},
		},
		{
			Name: "Time Decay",
			Type: domain.ModelTimeDecay,
			Config: domain.ModelConfig{
				LookbackWindowDays: lookbackDays,
				DecayFactor:        0.8,
			},
			Performance: domain.ModelPerformance{Accuracy: 0.75, Coverage: 0.90},
		},
		{
			Name: "Position Based",
			Type: domain.ModelPositionBased,
			Config: domain.ModelConfig{
				LookbackWindowDays: lookbackDays,
				PositionWeights:    &domain.PositionWeights{First: 0.4, Middle: 0.2, Last: 0.4},
			},
			Performance: domain.ModelPerformance{Accuracy: 0.72, Coverage: 0.90},
		},
		{
			Name: "Local Focused",
			Type: domain.ModelCustom,
			Config: domain.ModelConfig{
				LookbackWindowDays: lookbackDays,
				CustomStrategy:     domain.CustomStrategyLocalFocused,
				LocalBias:          1.5,
			},
			Performance: domain.ModelPerformance{Accuracy: 0.68, Coverage: 0.85},
		},
	}
}

// SeedStandardModels registers the built-in models, skipping any whose name
// is already taken (e.g. loaded from persistence).
func SeedStandardModels(ctx context.Context, r *Registry, lookbackDays int) {
	for _, m := range StandardModels(lookbackDays) {
		if _, err := r.Register(ctx, m); err != nil && !errors.Is(err, ErrDuplicateName) {
			log.Printf("Registry: seed %q: %v", m.Name, err)
		}
	}
}
