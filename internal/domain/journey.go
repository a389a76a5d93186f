package domain

import (
	"strings"
	"time"
)

// JourneyStatus enumerates the lifecycle states of a customer journey.
type JourneyStatus string

const (
	JourneyActive    JourneyStatus = "active"
	JourneyConverted JourneyStatus = "converted"
	JourneyLost      JourneyStatus = "lost"
	JourneyAbandoned JourneyStatus = "abandoned"
)

// JourneyComplexity buckets journeys by touchpoint count.
type JourneyComplexity string

const (
	ComplexitySimple   JourneyComplexity = "simple"   // 1 touchpoint
	ComplexityModerate JourneyComplexity = "moderate" // 2-3 touchpoints
	ComplexityComplex  JourneyComplexity = "complex"  // 4+ touchpoints
)

// Conversion is the terminal, value-bearing event of a journey.
type Conversion struct {
	Type      string    `json:"type" db:"conversion_type"`
	Value     float64   `json:"value" db:"conversion_value"`
	Currency  string    `json:"currency" db:"conversion_currency"`
	Timestamp time.Time `json:"timestamp" db:"conversion_at"`
	Channel   Channel   `json:"channel" db:"conversion_channel"`
}

// Attribution is the result of running one model over one journey. It is
// replaced atomically on recomputation; a journey is never partially
// attributed.
type Attribution struct {
	ModelID          string              `json:"model_id"`
	Weights          map[string]float64  `json:"weights"`           // touchpoint ID -> weight in [0,1]
	TotalValue       float64             `json:"total_value"`       // equals conversion value
	ChannelBreakdown map[Channel]float64 `json:"channel_breakdown"` // channel -> summed weight
	ComputedAt       time.Time           `json:"computed_at"`
}

// JourneyInsights are derived fields computed when a journey is built.
type JourneyInsights struct {
	PrimaryChannel     Channel           `json:"primary_channel"`
	SecondaryChannels  []Channel         `json:"secondary_channels"`
	Complexity         JourneyComplexity `json:"complexity"`
	ConversionVelocity float64           `json:"conversion_velocity_days"`
	LocalInfluence     float64           `json:"local_influence"` // 0-1
}

// Journey is the ordered set of touchpoints for one identity, terminating
// in conversion, loss, or abandonment. Once finalized it is treated as an
// immutable snapshot; attribution runs produce a new value rather than
// mutating shared state.
type Journey struct {
	ID          string          `json:"id" db:"id"`
	IdentityKey string          `json:"identity_key" db:"identity_key"`
	StartDate   time.Time       `json:"start_date" db:"start_date"`
	EndDate     *time.Time      `json:"end_date,omitempty" db:"end_date"`
	Status      JourneyStatus   `json:"status" db:"status"`
	Touchpoints []Touchpoint    `json:"touchpoints"`
	Conversion  *Conversion     `json:"conversion,omitempty"`
	Attribution *Attribution    `json:"attribution,omitempty"`
	Insights    JourneyInsights `json:"insights"`
}

// Converted reports whether the journey ended in a conversion.
func (j *Journey) Converted() bool {
	return j.Status == JourneyConverted && j.Conversion != nil
}

// EligibleTouchpoints returns the touchpoints that may carry weight:
// everything not truncated by the lookback window.
func (j *Journey) EligibleTouchpoints() []Touchpoint {
	eligible := make([]Touchpoint, 0, len(j.Touchpoints))
	for _, tp := range j.Touchpoints {
		if !tp.OutOfWindow {
			eligible = append(eligible, tp)
		}
	}
	return eligible
}

// ChannelSequence returns the ordered channel path as a single key,
// e.g. "organic_search→email→gmb". Out-of-window touchpoints are included;
// the sequence describes the observed path, not the attributable one.
func (j *Journey) ChannelSequence() string {
	parts := make([]string, len(j.Touchpoints))
	for i, tp := range j.Touchpoints {
		parts[i] = string(tp.Channel)
	}
	return strings.Join(parts, "→")
}

// ComplexityBucket classifies a journey by touchpoint count.
func ComplexityBucket(touchpointCount int) JourneyComplexity {
	switch {
	case touchpointCount <= 1:
		return ComplexitySimple
	case touchpointCount <= 3:
		return ComplexityModerate
	default:
		return ComplexityComplex
	}
}
