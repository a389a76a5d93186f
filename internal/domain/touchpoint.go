package domain

import (
	"time"
)

// Channel enumerates the marketing channels a touchpoint can belong to.
type Channel string

const (
	ChannelOrganicSearch Channel = "organic_search"
	ChannelPaidSearch    Channel = "paid_search"
	ChannelSocial        Channel = "social"
	ChannelEmail         Channel = "email"
	ChannelDirect        Channel = "direct"
	ChannelReferral      Channel = "referral"
	ChannelGMB           Channel = "gmb"
	ChannelLocalPack     Channel = "local_pack"
	ChannelDisplay       Channel = "display"
	ChannelVideo         Channel = "video"
)

// AllChannels lists every valid channel. Order is stable for reporting.
var AllChannels = []Channel{
	ChannelOrganicSearch,
	ChannelPaidSearch,
	ChannelSocial,
	ChannelEmail,
	ChannelDirect,
	ChannelReferral,
	ChannelGMB,
	ChannelLocalPack,
	ChannelDisplay,
	ChannelVideo,
}

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	for _, ch := range AllChannels {
		if c == ch {
			return true
		}
	}
	return false
}

// IsLocal reports whether the channel is inherently local-intent
// (Google Business Profile and local pack results).
func (c Channel) IsLocal() bool {
	return c == ChannelGMB || c == ChannelLocalPack
}

// BehaviorSignals captures on-page engagement recorded for a touchpoint.
type BehaviorSignals struct {
	TimeOnPageSeconds int      `json:"time_on_page_seconds" db:"time_on_page_seconds"`
	ScrollDepth       float64  `json:"scroll_depth" db:"scroll_depth"`
	Interactions      []string `json:"interactions,omitempty" db:"-"`
	EngagementScore   float64  `json:"engagement_score" db:"engagement_score"` // 0-100
}

// LocalContext carries local-market signals attached by ingestion.
type LocalContext struct {
	ProximityKm         float64 `json:"proximity_km" db:"proximity_km"`
	LocalIntent         bool    `json:"local_intent" db:"local_intent"`
	CompetitorMentioned bool    `json:"competitor_mentioned" db:"competitor_mentioned"`
	SeasonalFactor      float64 `json:"seasonal_factor" db:"seasonal_factor"` // 0-1
}

// TouchpointValue holds the estimated and attributed value of a touchpoint.
// Potential is an advisory estimate set by ingestion; Actual is written by
// the attribution calculator and overwritten on every recomputation.
type TouchpointValue struct {
	Potential float64 `json:"potential" db:"value_potential"`
	Actual    float64 `json:"actual" db:"value_actual"`
}

// Touchpoint is a single recorded marketing interaction. Touchpoints are
// immutable after ingestion except for Value.Actual, which the calculator
// replaces wholesale on each attribution run.
type Touchpoint struct {
	ID        string    `json:"id" db:"id"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	Channel   Channel   `json:"channel" db:"channel"`
	Source    string    `json:"source" db:"source"`
	Campaign  string    `json:"campaign,omitempty" db:"campaign"`
	SessionID string    `json:"session_id" db:"session_id"`
	UserID    string    `json:"user_id,omitempty" db:"user_id"`
	Device    string    `json:"device" db:"device"`
	Location  string    `json:"location" db:"location"`

	Behavior BehaviorSignals `json:"behavior"`
	Value    TouchpointValue `json:"value"`
	Local    LocalContext    `json:"local_context"`

	// OutOfWindow marks touchpoints older than the model's lookback window
	// relative to the conversion. They stay visible for analytics but are
	// never weighted.
	OutOfWindow bool `json:"out_of_window" db:"out_of_window"`
}

// IdentityKey returns the key touchpoints are grouped under when building
// journeys: the user ID when known, otherwise the session ID.
func (t *Touchpoint) IdentityKey() string {
	if t.UserID != "" {
		return t.UserID
	}
	return t.SessionID
}

// IsLocalIntent reports whether the touchpoint should receive local bias:
// either ingestion flagged explicit local intent, or the channel itself is
// a local surface.
func (t *Touchpoint) IsLocalIntent() bool {
	return t.Local.LocalIntent || t.Channel.IsLocal()
}
