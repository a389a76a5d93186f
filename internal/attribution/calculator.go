// Package attribution implements the weighting models that distribute a
// conversion's value across a journey's touchpoints. Compute is a pure
// function over immutable snapshots: it returns a new journey value and
// never mutates the caller's copy, which is what makes per-journey
// computation embarrassingly parallel.
package attribution

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ignite/attribution-engine/internal/domain"
)

// ErrEmptyJourney is returned when a converted journey has no touchpoint
// eligible to carry weight (all truncated by the lookback window or
// excluded by ignore_direct).
var ErrEmptyJourney = errors.New("no eligible touchpoints to attribute")

// Compute applies the model's weighting to the journey and returns a copy
// with Attribution and per-touchpoint Value.Actual populated.
//
// Non-converted journeys get an all-zero attribution record: there is no
// value to distribute and that is not an error. Converted journeys with no
// eligible touchpoints return ErrEmptyJourney so callers can count the
// data-quality condition without crashing a batch.
func Compute(j domain.Journey, model *domain.AttributionModel) (domain.Journey, error) {
	out := cloneJourney(j)

	if !out.Converted() {
		// No value to distribute; zero every weight and actual value so a
		// stale attribution from a prior run cannot survive.
		weights := make(map[string]float64, len(out.Touchpoints))
		for i := range out.Touchpoints {
			out.Touchpoints[i].Value.Actual = 0
			weights[out.Touchpoints[i].ID] = 0
		}
		out.Attribution = &domain.Attribution{
			ModelID:          model.ID,
			Weights:          weights,
			TotalValue:       0,
			ChannelBreakdown: map[domain.Channel]float64{},
			ComputedAt:       time.Now().UTC(),
		}
		return out, nil
	}

	// The model's own lookback window binds here, on top of any build-time
	// truncation: the same journey can be computed under models with
	// different windows.
	var cutoff time.Time
	if model.Config.LookbackWindowDays > 0 {
		cutoff = out.Conversion.Timestamp.AddDate(0, 0, -model.Config.LookbackWindowDays)
	}

	// Indexes into out.Touchpoints that may carry weight.
	eligible := make([]int, 0, len(out.Touchpoints))
	for i, tp := range out.Touchpoints {
		if tp.OutOfWindow {
			continue
		}
		if !cutoff.IsZero() && tp.Timestamp.Before(cutoff) {
			out.Touchpoints[i].OutOfWindow = true
			continue
		}
		if model.Config.IgnoreDirect && tp.Channel == domain.ChannelDirect {
			continue
		}
		eligible = append(eligible, i)
	}
	if len(eligible) == 0 {
		return out, fmt.Errorf("journey %s under model %s: %w", out.ID, model.ID, ErrEmptyJourney)
	}

	weights, err := baseWeights(out, model, eligible)
	if err != nil {
		return out, err
	}

	if bias := model.EffectiveLocalBias(); bias > 1.0 {
		applyLocalBias(out, weights, eligible, bias)
	}

	normalize(weights)

	// Distribute the conversion value and build the attribution record.
	value := out.Conversion.Value
	weightByID := make(map[string]float64, len(out.Touchpoints))
	breakdown := make(map[domain.Channel]float64)
	for i := range out.Touchpoints {
		out.Touchpoints[i].Value.Actual = 0
		weightByID[out.Touchpoints[i].ID] = 0
	}
	for k, idx := range eligible {
		w := weights[k]
		tp := &out.Touchpoints[idx]
		tp.Value.Actual = w * value
		weightByID[tp.ID] = w
		breakdown[tp.Channel] += w
	}

	out.Attribution = &domain.Attribution{
		ModelID:          model.ID,
		Weights:          weightByID,
		TotalValue:       value,
		ChannelBreakdown: breakdown,
		ComputedAt:       time.Now().UTC(),
	}
	return out, nil
}

// baseWeights computes the pre-bias weight vector, one entry per eligible
// touchpoint, in journey order. All strategies return a vector summing to 1.
func baseWeights(j domain.Journey, model *domain.AttributionModel, eligible []int) ([]float64, error) {
	n := len(eligible)
	weights := make([]float64, n)

	switch model.Type {
	case domain.ModelFirstTouch:
		weights[0] = 1.0

	case domain.ModelLastTouch:
		weights[n-1] = 1.0

	case domain.ModelLinear:
		for i := range weights {
			weights[i] = 1.0 / float64(n)
		}

	case domain.ModelTimeDecay:
		// Raw weight decayFactor^daysSince, then normalized: more recent
		// touchpoints never weigh less than older ones for factor < 1.
		for k, idx := range eligible {
			daysSince := j.Conversion.Timestamp.Sub(j.Touchpoints[idx].Timestamp).Hours() / 24
			if daysSince < 0 {
				daysSince = 0
			}
			weights[k] = math.Pow(model.Config.DecayFactor, daysSince)
		}
		normalize(weights)

	case domain.ModelPositionBased:
		pw := model.Config.PositionWeights
		if pw == nil {
			return nil, fmt.Errorf("model %s: position_based without position weights", model.ID)
		}
		switch {
		case n == 1:
			weights[0] = 1.0
		case n == 2:
			// No middle positions: renormalize first+last to sum 1. A
			// middle-only configuration has nothing to renormalize, so the
			// two endpoints split evenly.
			total := pw.First + pw.Last
			if total <= 0 {
				weights[0] = 0.5
				weights[1] = 0.5
			} else {
				weights[0] = pw.First / total
				weights[1] = pw.Last / total
			}
		default:
			middleShare := pw.Middle / float64(n-2)
			weights[0] = pw.First
			weights[n-1] = pw.Last
			for i := 1; i < n-1; i++ {
				weights[i] = middleShare
			}
		}

	case domain.ModelCustom:
		// The only custom strategy is local-focused: linear base, local
		// bias applied afterwards like any other model's bias pass.
		for i := range weights {
			weights[i] = 1.0 / float64(n)
		}

	default:
		return nil, fmt.Errorf("model %s: unsupported type %q", model.ID, model.Type)
	}

	return weights, nil
}

// applyLocalBias multiplies the weight of every local-intent touchpoint by
// the bias factor. Callers must renormalize afterwards: bias reshapes the
// distribution, never the total attributed value.
func applyLocalBias(j domain.Journey, weights []float64, eligible []int, bias float64) {
	for k, idx := range eligible {
		if j.Touchpoints[idx].IsLocalIntent() {
			weights[k] *= bias
		}
	}
}

// normalize scales the vector to sum to 1. A zero vector is left unchanged
// (nothing to conserve).
func normalize(weights []float64) {
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return
	}
	for i := range weights {
		weights[i] /= sum
	}
}

// cloneJourney deep-copies the mutable parts of a journey so Compute can
// write results without touching the caller's snapshot.
func cloneJourney(j domain.Journey) domain.Journey {
	out := j
	out.Touchpoints = make([]domain.Touchpoint, len(j.Touchpoints))
	copy(out.Touchpoints, j.Touchpoints)
	if j.Conversion != nil {
		conv := *j.Conversion
		out.Conversion = &conv
	}
	out.Attribution = nil
	return out
}
