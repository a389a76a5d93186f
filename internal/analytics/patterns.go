package analytics

import (
	"sort"

	"github.com/ignite/attribution-engine/internal/domain"
)

// SequenceStat tracks one ordered channel path across the journey set.
type SequenceStat struct {
	Sequence           string  `json:"sequence"` // e.g. "organic_search→email→gmb"
	Count              int64   `json:"count"`
	Conversions        int64   `json:"conversions"`
	AvgConversionValue float64 `json:"avg_conversion_value"`

	// conversionValueSum is carried so partial stats stay mergeable.
	conversionValueSum float64
}

// PatternSummary is the result of analyzing a journey set.
type PatternSummary struct {
	TotalJourneys  int64                             `json:"total_journeys"`
	ByComplexity   map[domain.JourneyComplexity]int64 `json:"by_complexity"`
	TopSequences   []SequenceStat                    `json:"top_sequences"`
	ConvertedCount int64                             `json:"converted_count"`
}

// AnalyzePatterns buckets journeys by complexity and extracts the topN
// channel sequences by conversion count, ties broken by higher average
// conversion value.
func AnalyzePatterns(journeys []domain.Journey, topN int) PatternSummary {
	if topN <= 0 {
		topN = 10
	}

	summary := PatternSummary{
		ByComplexity: map[domain.JourneyComplexity]int64{
			domain.ComplexitySimple:   0,
			domain.ComplexityModerate: 0,
			domain.ComplexityComplex:  0,
		},
	}

	sequences := make(map[string]*SequenceStat)
	for _, j := range journeys {
		if len(j.Touchpoints) == 0 {
			continue
		}
		summary.TotalJourneys++
		summary.ByComplexity[domain.ComplexityBucket(len(j.Touchpoints))]++

		key := j.ChannelSequence()
		stat := sequences[key]
		if stat == nil {
			stat = &SequenceStat{Sequence: key}
			sequences[key] = stat
		}
		stat.Count++
		if j.Converted() {
			summary.ConvertedCount++
			stat.Conversions++
			stat.conversionValueSum += j.Conversion.Value
		}
	}

	ranked := make([]SequenceStat, 0, len(sequences))
	for _, stat := range sequences {
		if stat.Conversions > 0 {
			stat.AvgConversionValue = stat.conversionValueSum / float64(stat.Conversions)
		}
		ranked = append(ranked, *stat)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Conversions != ranked[j].Conversions {
			return ranked[i].Conversions > ranked[j].Conversions
		}
		if ranked[i].AvgConversionValue != ranked[j].AvgConversionValue {
			return ranked[i].AvgConversionValue > ranked[j].AvgConversionValue
		}
		return ranked[i].Sequence < ranked[j].Sequence
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	summary.TopSequences = ranked
	return summary
}
