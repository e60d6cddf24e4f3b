package metrics

import (
	"testing"

	"github.com/tjfontaine/companion-core/internal/domain"
)

func lengths(ms []domain.ChatMetric) []int {
	out := make([]int, len(ms))
	for i, m := range ms {
		out[i] = m.MessageLength
	}
	return out
}

func TestRing_PushAndWrap(t *testing.T) {
	r := newRing(3)

	for i := 1; i <= 3; i++ {
		if evicted := r.push(domain.ChatMetric{ChatMetricInput: domain.ChatMetricInput{MessageLength: i}}); evicted {
			t.Fatalf("push %d evicted before capacity", i)
		}
	}
	if !r.push(domain.ChatMetric{ChatMetricInput: domain.ChatMetricInput{MessageLength: 4}}) {
		t.Fatalf("push beyond capacity should evict")
	}

	got := lengths(r.snapshot())
	want := []int{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("snapshot len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("snapshot[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRing_Reset(t *testing.T) {
	r := newRing(2)
	r.push(domain.ChatMetric{})
	r.push(domain.ChatMetric{})
	r.push(domain.ChatMetric{})
	r.reset()

	if r.len() != 0 {
		t.Fatalf("len after reset = %d, want 0", r.len())
	}
	r.push(domain.ChatMetric{ChatMetricInput: domain.ChatMetricInput{MessageLength: 9}})
	if got := lengths(r.snapshot()); len(got) != 1 || got[0] != 9 {
		t.Errorf("snapshot after reset = %v, want [9]", got)
	}
}

func TestPlatformFor(t *testing.T) {
	tests := []struct {
		goos, goarch string
		want         domain.Platform
	}{
		{"ios", "arm64", domain.PlatformIOS},
		{"android", "arm64", domain.PlatformAndroid},
		{"js", "wasm", domain.PlatformWeb},
		{"wasip1", "wasm", domain.PlatformWeb},
		{"linux", "amd64", domain.PlatformServer},
		{"darwin", "arm64", domain.PlatformServer},
	}
	for _, tt := range tests {
		if got := platformFor(tt.goos, tt.goarch); got != tt.want {
			t.Errorf("platformFor(%q, %q) = %q, want %q", tt.goos, tt.goarch, got, tt.want)
		}
	}
}
