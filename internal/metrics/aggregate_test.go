package metrics

import (
	"testing"

	"github.com/tjfontaine/companion-core/internal/domain"
)

func TestPercentile(t *testing.T) {
	seq := func(n int, step int64) []int64 {
		out := make([]int64, n)
		for i := range out {
			out[i] = int64(i+1) * step
		}
		return out
	}

	tests := []struct {
		name   string
		values []int64
		want   int64
	}{
		{name: "empty", values: nil, want: 0},
		{name: "single", values: []int64{42}, want: 42},
		{name: "two values", values: []int64{10, 20}, want: 20},
		{name: "hundred ascending", values: seq(100, 100), want: 9500},
		{name: "twenty", values: seq(20, 1), want: 19},
		{name: "unsorted input", values: []int64{500, 100, 300, 200, 400}, want: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := percentile(tt.values, p95); got != tt.want {
				t.Errorf("percentile() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPercentile_DoesNotReorderInput(t *testing.T) {
	values := []int64{3, 1, 2}
	percentile(values, p95)
	if values[0] != 3 || values[1] != 1 || values[2] != 2 {
		t.Errorf("input reordered: %v", values)
	}
}

func TestAggregate_ZeroDurationsExcludedFromLatency(t *testing.T) {
	metrics := []domain.ChatMetric{
		{ChatMetricInput: domain.ChatMetricInput{TotalDuration: 0}},
		{ChatMetricInput: domain.ChatMetricInput{TotalDuration: 0}},
		{ChatMetricInput: domain.ChatMetricInput{TotalDuration: 400}},
	}

	agg := Aggregate(metrics)
	if agg.TotalMessages != 3 {
		t.Errorf("TotalMessages = %d, want 3", agg.TotalMessages)
	}
	if agg.AverageResponseTime != 400 {
		t.Errorf("AverageResponseTime = %v, want 400", agg.AverageResponseTime)
	}
	if agg.PerformanceP95 != 400 {
		t.Errorf("PerformanceP95 = %d, want 400", agg.PerformanceP95)
	}
}

func TestAggregate_Mean(t *testing.T) {
	var metrics []domain.ChatMetric
	for _, d := range []int64{1000, 2000, 1500} {
		metrics = append(metrics, domain.ChatMetric{ChatMetricInput: domain.ChatMetricInput{TotalDuration: d}})
	}
	if got := Aggregate(metrics).AverageResponseTime; got != 1500 {
		t.Errorf("AverageResponseTime = %v, want 1500", got)
	}
}
