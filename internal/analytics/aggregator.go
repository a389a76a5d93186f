// Package analytics reduces attributed journeys into channel-level metrics
// and journey-pattern summaries. The aggregation core carries raw counts
// and sums only, so partial aggregates from concurrent workers merge
// without re-scanning raw data.
package analytics

import (
	"sort"
	"time"

	"github.com/ignite/attribution-engine/internal/domain"
)

// ChannelAccumulator carries the raw (count, sum) pairs for one channel.
// Merging two accumulators is plain addition, which is what makes the
// aggregation associative and safe to partition across workers. Rates and
// averages are derived only at snapshot time, never stored.
type ChannelAccumulator struct {
	Touchpoints     int64   `json:"touchpoints"`
	Conversions     int64   `json:"conversions"`
	AttributedValue float64 `json:"attributed_value"`
	PositionSum     float64 `json:"position_sum"` // sum of 1-based ordinals
}

// Aggregate accumulates per-channel state across journeys. The zero value
// is ready to use.
type Aggregate struct {
	channels map[domain.Channel]*ChannelAccumulator
	journeys int64
	skipped  int64 // journeys excluded for data-quality reasons
}

// NewAggregate returns an empty aggregate.
func NewAggregate() *Aggregate {
	return &Aggregate{channels: make(map[domain.Channel]*ChannelAccumulator)}
}

// AddJourney folds one attributed journey into the aggregate. A channel's
// conversion count increments once per converted journey the channel
// appears in, regardless of how many touchpoints it contributed.
func (a *Aggregate) AddJourney(j domain.Journey) {
	if a.channels == nil {
		a.channels = make(map[domain.Channel]*ChannelAccumulator)
	}
	a.journeys++

	seenChannel := make(map[domain.Channel]bool)
	for i, tp := range j.Touchpoints {
		acc := a.channels[tp.Channel]
		if acc == nil {
			acc = &ChannelAccumulator{}
			a.channels[tp.Channel] = acc
		}
		acc.Touchpoints++
		acc.PositionSum += float64(i + 1)
		acc.AttributedValue += tp.Value.Actual
		if j.Converted() && !seenChannel[tp.Channel] {
			acc.Conversions++
			seenChannel[tp.Channel] = true
		}
	}
}

// AddSkipped records a journey excluded from aggregation (e.g. a converted
// journey with no eligible touchpoints). Tracked as a data-quality metric.
func (a *Aggregate) AddSkipped() {
	a.skipped++
}

// Merge folds another aggregate into this one. Merge is commutative and
// associative: aggregating partitions separately then merging equals
// aggregating everything at once.
func (a *Aggregate) Merge(other *Aggregate) {
	if other == nil {
		return
	}
	if a.channels == nil {
		a.channels = make(map[domain.Channel]*ChannelAccumulator)
	}
	for ch, acc := range other.channels {
		dst := a.channels[ch]
		if dst == nil {
			dst = &ChannelAccumulator{}
			a.channels[ch] = dst
		}
		dst.Touchpoints += acc.Touchpoints
		dst.Conversions += acc.Conversions
		dst.AttributedValue += acc.AttributedValue
		dst.PositionSum += acc.PositionSum
	}
	a.journeys += other.journeys
	a.skipped += other.skipped
}

// JourneyCount returns the number of journeys folded in.
func (a *Aggregate) JourneyCount() int64 { return a.journeys }

// SkippedCount returns the number of journeys excluded for data quality.
func (a *Aggregate) SkippedCount() int64 { return a.skipped }

// ChannelMetric is the derived, report-ready view of one channel.
type ChannelMetric struct {
	Channel         domain.Channel `json:"channel"`
	Touchpoints     int64          `json:"touchpoints"`
	Conversions     int64          `json:"conversions"`
	ConversionRate  float64        `json:"conversion_rate"`
	AttributedValue float64        `json:"attributed_value"`
	AvgPosition     float64        `json:"avg_position"`
	Spend           *float64       `json:"spend,omitempty"`
	ROI             *float64       `json:"roi,omitempty"` // nil when spend unknown
}

// Report derives the per-channel metrics from the raw accumulators.
// spendByChannel supplies externally tracked spend; channels without a
// spend figure report a nil ROI rather than dividing by zero.
func (a *Aggregate) Report(spendByChannel map[domain.Channel]float64) []ChannelMetric {
	metrics := make([]ChannelMetric, 0, len(a.channels))
	for ch, acc := range a.channels {
		m := ChannelMetric{
			Channel:         ch,
			Touchpoints:     acc.Touchpoints,
			Conversions:     acc.Conversions,
			AttributedValue: acc.AttributedValue,
		}
		if acc.Touchpoints > 0 {
			m.ConversionRate = float64(acc.Conversions) / float64(acc.Touchpoints)
			m.AvgPosition = acc.PositionSum / float64(acc.Touchpoints)
		}
		if spend, ok := spendByChannel[ch]; ok && spend > 0 {
			s := spend
			roi := acc.AttributedValue / spend
			m.Spend = &s
			m.ROI = &roi
		}
		metrics = append(metrics, m)
	}
	sort.Slice(metrics, func(i, j int) bool {
		if metrics[i].AttributedValue == metrics[j].AttributedValue {
			return metrics[i].Channel < metrics[j].Channel
		}
		return metrics[i].AttributedValue > metrics[j].AttributedValue
	})
	return metrics
}

// TimeRange filters journeys to those starting within [from, to). A zero
// bound disables that side of the filter.
func TimeRange(journeys []domain.Journey, from, to time.Time) []domain.Journey {
	out := make([]domain.Journey, 0, len(journeys))
	for _, j := range journeys {
		if !from.IsZero() && j.StartDate.Before(from) {
			continue
		}
		if !to.IsZero() && !j.StartDate.Before(to) {
			continue
		}
		out = append(out, j)
	}
	return out
}

// AggregateJourneys is the one-shot convenience form: fold every journey
// into a fresh aggregate and derive the report.
func AggregateJourneys(journeys []domain.Journey, spendByChannel map[domain.Channel]float64) []ChannelMetric {
	agg := NewAggregate()
	for _, j := range journeys {
		agg.AddJourney(j)
	}
	return agg.Report(spendByChannel)
}
