// Package journey groups raw touchpoints into ordered customer journeys,
// applies lookback-window truncation, and derives journey-level insights.
// Touchpoint ingestion is an external collaborator; the builder assumes the
// input is fully materialized before it runs.
package journey

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/attribution-engine/internal/domain"
)

// ErrEmptyJourney is returned when a converted journey has zero eligible
// touchpoints after lookback truncation. This is a data-integrity condition
// surfaced to the caller, never silently dropped.
var ErrEmptyJourney = errors.New("converted journey has no eligible touchpoints")

// ConversionSignal attaches an external conversion marker to an identity.
// Ingestion supplies these alongside the raw touchpoint batch.
type ConversionSignal struct {
	IdentityKey string    `json:"identity_key"`
	Type        string    `json:"type"`
	Value       float64   `json:"value"`
	Currency    string    `json:"currency"`
	Timestamp   time.Time `json:"timestamp"`
}

// Builder assembles journeys from unordered touchpoint collections.
type Builder struct {
	lookbackDays int
}

// NewBuilder creates a journey builder. lookbackDays bounds the age of
// attributable touchpoints relative to the conversion; zero disables
// truncation.
func NewBuilder(lookbackDays int) *Builder {
	return &Builder{lookbackDays: lookbackDays}
}

// Build groups touchpoints by identity (user ID preferred, session ID as
// fallback), sorts each group chronologically, attaches conversion signals,
// and applies the lookback window. Journeys are returned sorted by start
// date for deterministic output.
func (b *Builder) Build(touchpoints []domain.Touchpoint, signals []ConversionSignal) ([]domain.Journey, error) {
	byIdentity := make(map[string][]domain.Touchpoint)
	for _, tp := range touchpoints {
		key := tp.IdentityKey()
		if key == "" {
			continue // untraceable event, nothing to group under
		}
		byIdentity[key] = append(byIdentity[key], tp)
	}

	signalByIdentity := make(map[string]ConversionSignal, len(signals))
	for _, s := range signals {
		signalByIdentity[s.IdentityKey] = s
	}

	journeys := make([]domain.Journey, 0, len(byIdentity))
	for key, tps := range byIdentity {
		sort.SliceStable(tps, func(i, j int) bool {
			return tps[i].Timestamp.Before(tps[j].Timestamp)
		})

		j := domain.Journey{
			ID:          uuid.New().String(),
			IdentityKey: key,
			StartDate:   tps[0].Timestamp,
			Status:      domain.JourneyActive,
			Touchpoints: tps,
		}

		if sig, ok := signalByIdentity[key]; ok && sig.Value <= 0 {
			// A broken signal degrades only its own journey: the identity
			// stays unconverted instead of failing the whole batch.
			log.Printf("Builder: dropping conversion for identity %s: non-positive value %.2f", key, sig.Value)
		} else if ok {
			last := tps[len(tps)-1]
			j.Status = domain.JourneyConverted
			end := sig.Timestamp
			j.EndDate = &end
			j.Conversion = &domain.Conversion{
				Type:      sig.Type,
				Value:     sig.Value,
				Currency:  sig.Currency,
				Timestamp: sig.Timestamp,
				Channel:   last.Channel,
			}
			b.applyLookback(&j)
		}

		deriveInsights(&j)
		journeys = append(journeys, j)
	}

	sort.Slice(journeys, func(i, k int) bool {
		if journeys[i].StartDate.Equal(journeys[k].StartDate) {
			return journeys[i].IdentityKey < journeys[k].IdentityKey
		}
		return journeys[i].StartDate.Before(journeys[k].StartDate)
	})
	return journeys, nil
}

// applyLookback flags touchpoints older than the lookback window relative
// to the conversion. Flagged touchpoints stay on the journey for analytics
// but carry weight zero.
func (b *Builder) applyLookback(j *domain.Journey) {
	if b.lookbackDays <= 0 || j.Conversion == nil {
		return
	}
	cutoff := j.Conversion.Timestamp.AddDate(0, 0, -b.lookbackDays)
	for i := range j.Touchpoints {
		if j.Touchpoints[i].Timestamp.Before(cutoff) {
			j.Touchpoints[i].OutOfWindow = true
		}
	}
}

// Validate checks builder-level invariants on a finished journey: converted
// journeys must retain at least one eligible touchpoint.
func Validate(j *domain.Journey) error {
	if j.Converted() && len(j.EligibleTouchpoints()) == 0 {
		return fmt.Errorf("journey %s: %w", j.ID, ErrEmptyJourney)
	}
	return nil
}

func deriveInsights(j *domain.Journey) {
	if len(j.Touchpoints) == 0 {
		return
	}

	insights := domain.JourneyInsights{
		PrimaryChannel: j.Touchpoints[0].Channel,
		Complexity:     domain.ComplexityBucket(len(j.Touchpoints)),
	}

	// Secondary channels are the distinct channels seen after the first
	// touchpoint, in order of first appearance.
	seen := make(map[domain.Channel]bool)
	localCount := 0
	for i, tp := range j.Touchpoints {
		if tp.IsLocalIntent() {
			localCount++
		}
		if i == 0 {
			continue
		}
		if !seen[tp.Channel] {
			seen[tp.Channel] = true
			insights.SecondaryChannels = append(insights.SecondaryChannels, tp.Channel)
		}
	}
	insights.LocalInfluence = float64(localCount) / float64(len(j.Touchpoints))

	if j.Conversion != nil {
		insights.ConversionVelocity = j.Conversion.Timestamp.Sub(j.StartDate).Hours() / 24
	}

	j.Insights = insights
}
