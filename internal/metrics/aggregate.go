package metrics

import (
	"slices"

	"github.com/tjfontaine/companion-core/internal/domain"
)

// p95 is the percentile reported as PerformanceP95.
const p95 = 95

// Aggregate computes the derived statistics over metrics. An empty input
// yields the zero snapshot.
//
// Mean response time and P95 both consider only entries with a positive
// TotalDuration; a zero duration means the round-trip was never timed.
func Aggregate(metrics []domain.ChatMetric) domain.AggregatedMetrics {
	var agg domain.AggregatedMetrics
	if len(metrics) == 0 {
		return agg
	}

	var (
		durations    = make([]int64, 0, len(metrics))
		durationSum  int64
		errorCount   int
		crisisCount  int
		qualitySum   int
		qualityCount int
	)

	for _, m := range metrics {
		if m.TotalDuration > 0 {
			durations = append(durations, m.TotalDuration)
			durationSum += m.TotalDuration
		}
		if m.HasError() {
			errorCount++
		}
		if m.CrisisDetected {
			crisisCount++
		}

		switch m.Language {
		case domain.LanguageEnglish:
			agg.LanguageDistribution.En++
		case domain.LanguageArabic:
			agg.LanguageDistribution.Ar++
		}

		switch m.ChatMode {
		case domain.ChatModeFloating:
			agg.ChatModeUsage.Floating++
		case domain.ChatModeFull:
			agg.ChatModeUsage.Full++
		}

		if m.AIResponseQuality != nil {
			qualitySum += *m.AIResponseQuality
			qualityCount++
		}
	}

	total := float64(len(metrics))
	agg.TotalMessages = len(metrics)
	agg.ErrorRate = float64(errorCount) / total
	agg.CrisisDetectionRate = float64(crisisCount) / total
	if len(durations) > 0 {
		agg.AverageResponseTime = float64(durationSum) / float64(len(durations))
	}
	agg.PerformanceP95 = percentile(durations, p95)
	if qualityCount > 0 {
		agg.QualityScore = float64(qualitySum) / float64(qualityCount)
	}

	return agg
}

// percentile returns the nearest-rank pct-th percentile of values: the
// smallest value such that at least pct percent of the sample is less than
// or equal to it. Integer math keeps the rank exact.
func percentile(values []int64, pct int) int64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	rank := (pct*len(sorted) + 99) / 100
	idx := rank - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
