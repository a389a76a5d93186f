package attribution

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/attribution-engine/internal/domain"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func makeTouchpoint(id string, ch domain.Channel, daysBeforeConversion float64, localIntent bool) domain.Touchpoint {
	return domain.Touchpoint{
		ID:        id,
		Timestamp: baseTime.Add(-time.Duration(daysBeforeConversion * 24 * float64(time.Hour))),
		Channel:   ch,
		SessionID: "s-1",
		UserID:    "u-1",
		Local:     domain.LocalContext{LocalIntent: localIntent},
	}
}

func makeConvertedJourney(value float64, tps ...domain.Touchpoint) domain.Journey {
	end := baseTime
	return domain.Journey{
		ID:          "j-1",
		IdentityKey: "u-1",
		StartDate:   tps[0].Timestamp,
		EndDate:     &end,
		Status:      domain.JourneyConverted,
		Touchpoints: tps,
		Conversion: &domain.Conversion{
			Type:      "purchase",
			Value:     value,
			Currency:  "USD",
			Timestamp: baseTime,
			Channel:   tps[len(tps)-1].Channel,
		},
	}
}

func model(t domain.ModelType, cfg domain.ModelConfig) *domain.AttributionModel {
	return &domain.AttributionModel{ID: "m-" + string(t), Name: string(t), Type: t, Config: cfg}
}

// threeTouchJourney is the reference scenario: organic_search, email, then
// gmb with local intent, converting for 1000.
func threeTouchJourney() domain.Journey {
	return makeConvertedJourney(1000,
		makeTouchpoint("tp-1", domain.ChannelOrganicSearch, 2, false),
		makeTouchpoint("tp-2", domain.ChannelEmail, 1, false),
		makeTouchpoint("tp-3", domain.ChannelGMB, 0, true),
	)
}

func weightOf(t *testing.T, j domain.Journey, id string) float64 {
	t.Helper()
	require.NotNil(t, j.Attribution)
	w, ok := j.Attribution.Weights[id]
	require.True(t, ok, "no weight for touchpoint %s", id)
	return w
}

func assertConservation(t *testing.T, j domain.Journey) {
	t.Helper()
	require.NotNil(t, j.Attribution)

	var weightSum, valueSum float64
	for _, w := range j.Attribution.Weights {
		weightSum += w
	}
	for _, tp := range j.Touchpoints {
		valueSum += tp.Value.Actual
	}
	assert.InDelta(t, 1.0, weightSum, 1e-6, "weights must sum to 1")
	assert.InDelta(t, j.Conversion.Value, valueSum, 1e-6, "attributed value must equal conversion value")
}

func TestCompute_FirstTouch(t *testing.T) {
	out, err := Compute(threeTouchJourney(), model(domain.ModelFirstTouch, domain.ModelConfig{}))
	require.NoError(t, err)

	assert.Equal(t, 1.0, weightOf(t, out, "tp-1"))
	assert.Equal(t, 0.0, weightOf(t, out, "tp-2"))
	assert.Equal(t, 0.0, weightOf(t, out, "tp-3"))
	assert.InDelta(t, 1000.0, out.Touchpoints[0].Value.Actual, 1e-6)
	assert.Equal(t, 0.0, out.Touchpoints[1].Value.Actual)
	assertConservation(t, out)
}

func TestCompute_LastTouch(t *testing.T) {
	out, err := Compute(threeTouchJourney(), model(domain.ModelLastTouch, domain.ModelConfig{}))
	require.NoError(t, err)

	assert.Equal(t, 0.0, weightOf(t, out, "tp-1"))
	assert.Equal(t, 1.0, weightOf(t, out, "tp-3"))
	assertConservation(t, out)
}

func TestCompute_Linear(t *testing.T) {
	out, err := Compute(threeTouchJourney(), model(domain.ModelLinear, domain.ModelConfig{}))
	require.NoError(t, err)

	for _, id := range []string{"tp-1", "tp-2", "tp-3"} {
		assert.InDelta(t, 1.0/3.0, weightOf(t, out, id), 1e-9)
	}
	for _, tp := range out.Touchpoints {
		assert.InDelta(t, 1000.0/3.0, tp.Value.Actual, 1e-6)
	}
	assertConservation(t, out)
}

func TestCompute_TimeDecay_RecencyMonotonic(t *testing.T) {
	out, err := Compute(threeTouchJourney(), model(domain.ModelTimeDecay, domain.ModelConfig{DecayFactor: 0.8}))
	require.NoError(t, err)

	w1 := weightOf(t, out, "tp-1")
	w2 := weightOf(t, out, "tp-2")
	w3 := weightOf(t, out, "tp-3")
	assert.GreaterOrEqual(t, w2, w1, "more recent touchpoint must not weigh less")
	assert.GreaterOrEqual(t, w3, w2)

	// Expected shape: 0.8^2, 0.8^1, 0.8^0, normalized.
	raw := []float64{0.64, 0.8, 1.0}
	sum := raw[0] + raw[1] + raw[2]
	assert.InDelta(t, raw[0]/sum, w1, 1e-9)
	assert.InDelta(t, raw[2]/sum, w3, 1e-9)
	assertConservation(t, out)
}

func TestCompute_PositionBased(t *testing.T) {
	pw := &domain.PositionWeights{First: 0.4, Middle: 0.2, Last: 0.4}

	t.Run("three touchpoints", func(t *testing.T) {
		out, err := Compute(threeTouchJourney(), model(domain.ModelPositionBased, domain.ModelConfig{PositionWeights: pw}))
		require.NoError(t, err)
		assert.InDelta(t, 0.4, weightOf(t, out, "tp-1"), 1e-9)
		assert.InDelta(t, 0.2, weightOf(t, out, "tp-2"), 1e-9)
		assert.InDelta(t, 0.4, weightOf(t, out, "tp-3"), 1e-9)
		assertConservation(t, out)
	})

	t.Run("five touchpoints split middle evenly", func(t *testing.T) {
		j := makeConvertedJourney(500,
			makeTouchpoint("a", domain.ChannelOrganicSearch, 4, false),
			makeTouchpoint("b", domain.ChannelSocial, 3, false),
			makeTouchpoint("c", domain.ChannelEmail, 2, false),
			makeTouchpoint("d", domain.ChannelReferral, 1, false),
			makeTouchpoint("e", domain.ChannelDirect, 0, false),
		)
		out, err := Compute(j, model(domain.ModelPositionBased, domain.ModelConfig{PositionWeights: pw}))
		require.NoError(t, err)
		assert.InDelta(t, 0.4, weightOf(t, out, "a"), 1e-9)
		assert.InDelta(t, 0.2/3.0, weightOf(t, out, "b"), 1e-9)
		assert.InDelta(t, 0.2/3.0, weightOf(t, out, "c"), 1e-9)
		assert.InDelta(t, 0.2/3.0, weightOf(t, out, "d"), 1e-9)
		assert.InDelta(t, 0.4, weightOf(t, out, "e"), 1e-9)
		assertConservation(t, out)
	})

	t.Run("two touchpoints renormalize first and last", func(t *testing.T) {
		j := makeConvertedJourney(100,
			makeTouchpoint("a", domain.ChannelOrganicSearch, 1, false),
			makeTouchpoint("b", domain.ChannelEmail, 0, false),
		)
		out, err := Compute(j, model(domain.ModelPositionBased, domain.ModelConfig{PositionWeights: pw}))
		require.NoError(t, err)
		assert.InDelta(t, 0.5, weightOf(t, out, "a"), 1e-9)
		assert.InDelta(t, 0.5, weightOf(t, out, "b"), 1e-9)
		assertConservation(t, out)
	})
}

func TestCompute_LocalFocused_RenormalizedBias(t *testing.T) {
	cfg := domain.ModelConfig{CustomStrategy: domain.CustomStrategyLocalFocused, LocalBias: 1.5}
	out, err := Compute(threeTouchJourney(), model(domain.ModelCustom, cfg))
	require.NoError(t, err)

	// Raw [1/3, 1/3, 0.5] renormalized: [0.2857, 0.2857, 0.4286].
	assert.InDelta(t, 2.0/7.0, weightOf(t, out, "tp-1"), 1e-4)
	assert.InDelta(t, 2.0/7.0, weightOf(t, out, "tp-2"), 1e-4)
	assert.InDelta(t, 3.0/7.0, weightOf(t, out, "tp-3"), 1e-4)

	assert.InDelta(t, 285.71, out.Touchpoints[0].Value.Actual, 0.01)
	assert.InDelta(t, 285.71, out.Touchpoints[1].Value.Actual, 0.01)
	assert.InDelta(t, 428.57, out.Touchpoints[2].Value.Actual, 0.01)
	assertConservation(t, out)

	// Bias must lift the local touchpoint strictly above its linear weight.
	linear, err := Compute(threeTouchJourney(), model(domain.ModelLinear, domain.ModelConfig{}))
	require.NoError(t, err)
	assert.Greater(t, weightOf(t, out, "tp-3"), weightOf(t, linear, "tp-3"))
}

func TestCompute_LocalBias_ChannelImpliesLocal(t *testing.T) {
	// gmb/local_pack channels are biased even without an explicit flag.
	j := makeConvertedJourney(100,
		makeTouchpoint("a", domain.ChannelEmail, 1, false),
		makeTouchpoint("b", domain.ChannelLocalPack, 0, false),
	)
	cfg := domain.ModelConfig{CustomStrategy: domain.CustomStrategyLocalFocused, LocalBias: 2.0}
	out, err := Compute(j, model(domain.ModelCustom, cfg))
	require.NoError(t, err)

	assert.InDelta(t, 1.0/3.0, weightOf(t, out, "a"), 1e-9)
	assert.InDelta(t, 2.0/3.0, weightOf(t, out, "b"), 1e-9)
	assertConservation(t, out)
}

func TestCompute_SingleTouchpoint_AllModels(t *testing.T) {
	models := []*domain.AttributionModel{
		model(domain.ModelFirstTouch, domain.ModelConfig{}),
		model(domain.ModelLastTouch, domain.ModelConfig{}),
		model(domain.ModelLinear, domain.ModelConfig{}),
		model(domain.ModelTimeDecay, domain.ModelConfig{DecayFactor: 0.8}),
		model(domain.ModelPositionBased, domain.ModelConfig{PositionWeights: &domain.PositionWeights{First: 0.4, Middle: 0.2, Last: 0.4}}),
		model(domain.ModelCustom, domain.ModelConfig{CustomStrategy: domain.CustomStrategyLocalFocused, LocalBias: 1.5}),
	}

	for _, m := range models {
		t.Run(string(m.Type), func(t *testing.T) {
			j := makeConvertedJourney(250, makeTouchpoint("only", domain.ChannelGMB, 0, true))
			out, err := Compute(j, m)
			require.NoError(t, err)
			assert.Equal(t, 1.0, weightOf(t, out, "only"))
			assert.InDelta(t, 250.0, out.Touchpoints[0].Value.Actual, 1e-6)
			assertConservation(t, out)
		})
	}
}

func TestCompute_IgnoreDirect(t *testing.T) {
	j := makeConvertedJourney(300,
		makeTouchpoint("a", domain.ChannelOrganicSearch, 2, false),
		makeTouchpoint("b", domain.ChannelDirect, 1, false),
		makeTouchpoint("c", domain.ChannelEmail, 0, false),
	)
	out, err := Compute(j, model(domain.ModelLinear, domain.ModelConfig{IgnoreDirect: true}))
	require.NoError(t, err)

	assert.Equal(t, 0.0, weightOf(t, out, "b"))
	assert.Equal(t, 0.0, out.Touchpoints[1].Value.Actual)
	assert.InDelta(t, 0.5, weightOf(t, out, "a"), 1e-9)
	assert.InDelta(t, 0.5, weightOf(t, out, "c"), 1e-9)
	assertConservation(t, out)
}

func TestCompute_IgnoreDirect_LastTouchFallsBack(t *testing.T) {
	// When the final touchpoint is direct and excluded, last-touch credit
	// moves to the last eligible touchpoint.
	j := makeConvertedJourney(100,
		makeTouchpoint("a", domain.ChannelEmail, 1, false),
		makeTouchpoint("b", domain.ChannelDirect, 0, false),
	)
	out, err := Compute(j, model(domain.ModelLastTouch, domain.ModelConfig{IgnoreDirect: true}))
	require.NoError(t, err)
	assert.Equal(t, 1.0, weightOf(t, out, "a"))
	assert.Equal(t, 0.0, weightOf(t, out, "b"))
}

func TestCompute_OutOfWindowExcluded(t *testing.T) {
	old := makeTouchpoint("old", domain.ChannelSocial, 120, false)
	old.OutOfWindow = true
	j := makeConvertedJourney(100,
		old,
		makeTouchpoint("recent", domain.ChannelEmail, 1, false),
	)
	out, err := Compute(j, model(domain.ModelFirstTouch, domain.ModelConfig{}))
	require.NoError(t, err)

	// First-touch credit goes to the first in-window touchpoint.
	assert.Equal(t, 0.0, weightOf(t, out, "old"))
	assert.Equal(t, 1.0, weightOf(t, out, "recent"))
	assert.Equal(t, 0.0, out.Touchpoints[0].Value.Actual)
}

func TestCompute_ModelLookbackWindow(t *testing.T) {
	j := makeConvertedJourney(100,
		makeTouchpoint("old", domain.ChannelSocial, 30, false),
		makeTouchpoint("recent", domain.ChannelEmail, 0, false),
	)

	t.Run("tight window excludes the stale touchpoint", func(t *testing.T) {
		out, err := Compute(j, model(domain.ModelLinear, domain.ModelConfig{LookbackWindowDays: 1}))
		require.NoError(t, err)

		assert.Equal(t, 0.0, weightOf(t, out, "old"))
		assert.Equal(t, 1.0, weightOf(t, out, "recent"))
		assert.Equal(t, 0.0, out.Touchpoints[0].Value.Actual)
		assert.True(t, out.Touchpoints[0].OutOfWindow)
		assertConservation(t, out)
	})

	t.Run("wide window keeps both", func(t *testing.T) {
		out, err := Compute(j, model(domain.ModelLinear, domain.ModelConfig{LookbackWindowDays: 60}))
		require.NoError(t, err)

		assert.InDelta(t, 0.5, weightOf(t, out, "old"), 1e-9)
		assert.InDelta(t, 0.5, weightOf(t, out, "recent"), 1e-9)
		assertConservation(t, out)
	})

	t.Run("window excluding every touchpoint is an empty journey", func(t *testing.T) {
		stale := makeConvertedJourney(100, makeTouchpoint("old", domain.ChannelSocial, 30, false))
		_, err := Compute(stale, model(domain.ModelLinear, domain.ModelConfig{LookbackWindowDays: 1}))
		assert.ErrorIs(t, err, ErrEmptyJourney)
	})

	t.Run("zero window disables model truncation", func(t *testing.T) {
		out, err := Compute(j, model(domain.ModelLinear, domain.ModelConfig{}))
		require.NoError(t, err)
		assert.InDelta(t, 0.5, weightOf(t, out, "old"), 1e-9)
	})
}

func TestCompute_PositionBased_MiddleOnlyWeights(t *testing.T) {
	// First+last of zero leaves nothing to renormalize on a 2-touch journey;
	// the endpoints split evenly instead of dividing by zero.
	pw := &domain.PositionWeights{First: 0, Middle: 1, Last: 0}
	j := makeConvertedJourney(100,
		makeTouchpoint("a", domain.ChannelOrganicSearch, 1, false),
		makeTouchpoint("b", domain.ChannelEmail, 0, false),
	)
	out, err := Compute(j, model(domain.ModelPositionBased, domain.ModelConfig{PositionWeights: pw}))
	require.NoError(t, err)

	assert.False(t, math.IsNaN(weightOf(t, out, "a")))
	assert.InDelta(t, 0.5, weightOf(t, out, "a"), 1e-9)
	assert.InDelta(t, 0.5, weightOf(t, out, "b"), 1e-9)
	assertConservation(t, out)
}

func TestCompute_NonConvertedJourney_AllZero(t *testing.T) {
	j := domain.Journey{
		ID:          "j-active",
		IdentityKey: "u-2",
		Status:      domain.JourneyActive,
		Touchpoints: []domain.Touchpoint{
			makeTouchpoint("a", domain.ChannelEmail, 1, false),
			makeTouchpoint("b", domain.ChannelSocial, 0, false),
		},
	}
	out, err := Compute(j, model(domain.ModelLinear, domain.ModelConfig{}))
	require.NoError(t, err)

	require.NotNil(t, out.Attribution)
	assert.Equal(t, 0.0, out.Attribution.TotalValue)
	for _, w := range out.Attribution.Weights {
		assert.Equal(t, 0.0, w)
	}
	for _, tp := range out.Touchpoints {
		assert.Equal(t, 0.0, tp.Value.Actual)
	}
}

func TestCompute_EmptyJourneyError(t *testing.T) {
	old := makeTouchpoint("old", domain.ChannelSocial, 200, false)
	old.OutOfWindow = true
	j := makeConvertedJourney(100, makeTouchpoint("placeholder", domain.ChannelEmail, 0, false))
	j.Touchpoints = []domain.Touchpoint{old}

	_, err := Compute(j, model(domain.ModelLinear, domain.ModelConfig{}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyJourney)
}

func TestCompute_DoesNotMutateInput(t *testing.T) {
	j := threeTouchJourney()
	_, err := Compute(j, model(domain.ModelLinear, domain.ModelConfig{}))
	require.NoError(t, err)

	assert.Nil(t, j.Attribution)
	for _, tp := range j.Touchpoints {
		assert.Equal(t, 0.0, tp.Value.Actual)
	}
}

func TestCompute_ChannelBreakdownSumsWeights(t *testing.T) {
	// Two email touchpoints: breakdown groups their weights.
	j := makeConvertedJourney(400,
		makeTouchpoint("a", domain.ChannelEmail, 3, false),
		makeTouchpoint("b", domain.ChannelSocial, 2, false),
		makeTouchpoint("c", domain.ChannelEmail, 1, false),
		makeTouchpoint("d", domain.ChannelGMB, 0, false),
	)
	out, err := Compute(j, model(domain.ModelLinear, domain.ModelConfig{}))
	require.NoError(t, err)

	assert.InDelta(t, 0.5, out.Attribution.ChannelBreakdown[domain.ChannelEmail], 1e-9)
	assert.InDelta(t, 0.25, out.Attribution.ChannelBreakdown[domain.ChannelSocial], 1e-9)

	var total float64
	for _, w := range out.Attribution.ChannelBreakdown {
		total += w
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestCompute_TimeDecay_WeightsSumToOne_ManyTouchpoints(t *testing.T) {
	tps := make([]domain.Touchpoint, 0, 30)
	for i := 0; i < 30; i++ {
		tps = append(tps, makeTouchpoint(
			string(rune('a'+i)), domain.ChannelEmail, float64(29-i), false))
	}
	j := makeConvertedJourney(12345.67, tps...)

	out, err := Compute(j, model(domain.ModelTimeDecay, domain.ModelConfig{DecayFactor: 0.5}))
	require.NoError(t, err)
	assertConservation(t, out)

	// Strictly increasing weights toward the conversion for factor < 1.
	prev := math.Inf(-1)
	for _, tp := range out.Touchpoints {
		w := out.Attribution.Weights[tp.ID]
		assert.Greater(t, w, prev)
		prev = w
	}
}
