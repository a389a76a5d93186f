package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/attribution-engine/internal/domain"
)

var t0 = time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

func attributedJourney(id string, converted bool, value float64, channels ...domain.Channel) domain.Journey {
	j := domain.Journey{
		ID:          id,
		IdentityKey: id,
		StartDate:   t0,
		Status:      domain.JourneyActive,
	}
	n := len(channels)
	for i, ch := range channels {
		tp := domain.Touchpoint{
			ID:        id + "-" + string(rune('a'+i)),
			Timestamp: t0.Add(time.Duration(i) * time.Hour),
			Channel:   ch,
			SessionID: id,
		}
		if converted {
			tp.Value.Actual = value / float64(n)
		}
		j.Touchpoints = append(j.Touchpoints, tp)
	}
	if converted {
		j.Status = domain.JourneyConverted
		j.Conversion = &domain.Conversion{
			Value:     value,
			Timestamp: t0.Add(time.Duration(n) * time.Hour),
			Channel:   channels[n-1],
		}
	}
	return j
}

func TestAggregate_BasicMetrics(t *testing.T) {
	agg := NewAggregate()
	agg.AddJourney(attributedJourney("j1", true, 300, domain.ChannelEmail, domain.ChannelEmail, domain.ChannelGMB))
	agg.AddJourney(attributedJourney("j2", false, 0, domain.ChannelEmail))

	metrics := agg.Report(nil)
	byChannel := make(map[domain.Channel]ChannelMetric)
	for _, m := range metrics {
		byChannel[m.Channel] = m
	}

	email := byChannel[domain.ChannelEmail]
	assert.Equal(t, int64(3), email.Touchpoints)
	// Conversions count journeys, not touchpoints: j1 only.
	assert.Equal(t, int64(1), email.Conversions)
	assert.InDelta(t, 1.0/3.0, email.ConversionRate, 1e-9)
	assert.InDelta(t, 200, email.AttributedValue, 1e-9)
	// Positions 1 and 2 in j1, 1 in j2.
	assert.InDelta(t, (1+2+1)/3.0, email.AvgPosition, 1e-9)

	gmb := byChannel[domain.ChannelGMB]
	assert.Equal(t, int64(1), gmb.Touchpoints)
	assert.InDelta(t, 100, gmb.AttributedValue, 1e-9)
	assert.InDelta(t, 3.0, gmb.AvgPosition, 1e-9)
}

func TestAggregate_ROINullWithoutSpend(t *testing.T) {
	agg := NewAggregate()
	agg.AddJourney(attributedJourney("j1", true, 100, domain.ChannelEmail, domain.ChannelSocial))

	spend := map[domain.Channel]float64{domain.ChannelEmail: 25}
	metrics := agg.Report(spend)

	for _, m := range metrics {
		switch m.Channel {
		case domain.ChannelEmail:
			require.NotNil(t, m.ROI)
			assert.InDelta(t, 2.0, *m.ROI, 1e-9) // 50 attributed / 25 spend
		case domain.ChannelSocial:
			assert.Nil(t, m.ROI, "ROI must be null when spend is unknown")
		}
	}
}

func TestAggregate_PartitionEquivalence(t *testing.T) {
	a := attributedJourney("A", true, 120, domain.ChannelOrganicSearch, domain.ChannelEmail)
	b := attributedJourney("B", true, 80, domain.ChannelEmail, domain.ChannelGMB)
	c := attributedJourney("C", false, 0, domain.ChannelSocial, domain.ChannelEmail)

	// All at once.
	whole := NewAggregate()
	for _, j := range []domain.Journey{a, b, c} {
		whole.AddJourney(j)
	}

	// Partitioned [A] and [B, C], then merged.
	p1 := NewAggregate()
	p1.AddJourney(a)
	p2 := NewAggregate()
	p2.AddJourney(b)
	p2.AddJourney(c)
	merged := NewAggregate()
	merged.Merge(p1)
	merged.Merge(p2)

	assert.Equal(t, whole.Report(nil), merged.Report(nil))
	assert.Equal(t, whole.JourneyCount(), merged.JourneyCount())
}

func TestAggregate_MergeCommutative(t *testing.T) {
	a := attributedJourney("A", true, 60, domain.ChannelEmail)
	b := attributedJourney("B", true, 40, domain.ChannelEmail, domain.ChannelDirect)

	left := NewAggregate()
	left.AddJourney(a)
	right := NewAggregate()
	right.AddJourney(b)

	ab := NewAggregate()
	ab.Merge(left)
	ab.Merge(right)

	ba := NewAggregate()
	ba.Merge(right)
	ba.Merge(left)

	assert.Equal(t, ab.Report(nil), ba.Report(nil))
}

func TestAggregate_SkippedTracking(t *testing.T) {
	agg := NewAggregate()
	agg.AddSkipped()
	agg.AddSkipped()

	other := NewAggregate()
	other.AddSkipped()
	agg.Merge(other)

	assert.Equal(t, int64(3), agg.SkippedCount())
}

func TestAggregate_ZeroValueReady(t *testing.T) {
	var agg Aggregate
	agg.AddJourney(attributedJourney("j1", false, 0, domain.ChannelVideo))
	assert.Len(t, agg.Report(nil), 1)
}

func TestTimeRange(t *testing.T) {
	early := attributedJourney("early", false, 0, domain.ChannelEmail)
	late := attributedJourney("late", false, 0, domain.ChannelEmail)
	late.StartDate = t0.AddDate(0, 1, 0)

	out := TimeRange([]domain.Journey{early, late}, t0.AddDate(0, 0, 15), time.Time{})
	require.Len(t, out, 1)
	assert.Equal(t, "late", out[0].ID)

	out = TimeRange([]domain.Journey{early, late}, time.Time{}, t0.AddDate(0, 0, 15))
	require.Len(t, out, 1)
	assert.Equal(t, "early", out[0].ID)

	out = TimeRange([]domain.Journey{early, late}, time.Time{}, time.Time{})
	assert.Len(t, out, 2)
}
