// Package intelligence scores attribution models against a journey set and
// recommends the best fit. Scoring blends each model's recorded accuracy
// and coverage with an affinity bonus for local-biased models on
// local-heavy journey sets.
package intelligence

import (
	"errors"
	"log"
	"sort"

	"github.com/ignite/attribution-engine/internal/attribution"
	"github.com/ignite/attribution-engine/internal/domain"
	"github.com/ignite/attribution-engine/internal/registry"
)

// Scoring blend. Accuracy dominates, coverage keeps broadly applicable
// models competitive, and the affinity term rewards local bias in
// proportion to how local the journey set actually is.
const (
	accuracyWeight = 0.5
	coverageWeight = 0.3
	affinityWeight = 0.2
)

// ErrNoModels is returned when the registry has no active models to score.
var ErrNoModels = errors.New("no active models to score")

// ModelScore is one model's standing in a comparison run.
type ModelScore struct {
	ModelID             string                     `json:"model_id"`
	ModelName           string                     `json:"model_name"`
	Score               float64                    `json:"score"`
	ChannelDistribution map[domain.Channel]float64 `json:"channel_distribution"`
}

// Recommendation names the winning model and how decisively it won.
type Recommendation struct {
	ModelID    string       `json:"model_id"`
	Confidence float64      `json:"confidence"` // winner minus runner-up, clamped to [0,1]
	Scores     []ModelScore `json:"scores"`
}

// Recommender compares active models over journey sets.
type Recommender struct {
	registry *registry.Registry
}

// NewRecommender creates a recommender reading models from the registry.
func NewRecommender(reg *registry.Registry) *Recommender {
	return &Recommender{registry: reg}
}

// Recommend runs every active model over the journey set, scores each, and
// returns the winner with a confidence value. Journeys that fail to
// attribute under a model degrade that model's distribution, not the run.
func (r *Recommender) Recommend(journeys []domain.Journey) (*Recommendation, error) {
	models := r.registry.ListActive()
	if len(models) == 0 {
		return nil, ErrNoModels
	}

	localFraction := localIntentFraction(journeys)

	scores := make([]ModelScore, 0, len(models))
	for i := range models {
		model := &models[i]
		dist := channelDistribution(journeys, model)

		affinity := 0.0
		if model.EffectiveLocalBias() > 1.0 {
			affinity = localFraction
		}

		scores = append(scores, ModelScore{
			ModelID:   model.ID,
			ModelName: model.Name,
			Score: accuracyWeight*model.Performance.Accuracy +
				coverageWeight*model.Performance.Coverage +
				affinityWeight*affinity,
			ChannelDistribution: dist,
		})
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score == scores[j].Score {
			return scores[i].ModelID < scores[j].ModelID
		}
		return scores[i].Score > scores[j].Score
	})

	confidence := scores[0].Score
	if len(scores) > 1 {
		confidence = scores[0].Score - scores[1].Score
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return &Recommendation{
		ModelID:    scores[0].ModelID,
		Confidence: confidence,
		Scores:     scores,
	}, nil
}

// channelDistribution re-runs the calculator under one model and sums the
// resulting channel breakdowns across the set.
func channelDistribution(journeys []domain.Journey, model *domain.AttributionModel) map[domain.Channel]float64 {
	dist := make(map[domain.Channel]float64)
	for _, j := range journeys {
		attributed, err := attribution.Compute(j, model)
		if err != nil {
			log.Printf("Recommender: journey %s under model %s: %v", j.ID, model.ID, err)
			continue
		}
		if attributed.Attribution == nil {
			continue
		}
		for ch, w := range attributed.Attribution.ChannelBreakdown {
			dist[ch] += w
		}
	}
	return dist
}

// localIntentFraction returns the fraction of touchpoints in the set
// flagged as local intent.
func localIntentFraction(journeys []domain.Journey) float64 {
	var total, local int
	for _, j := range journeys {
		for _, tp := range j.Touchpoints {
			total++
			if tp.IsLocalIntent() {
				local++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(local) / float64(total)
}
