package metrics

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tjfontaine/companion-core/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCollector(t *testing.T, opts ...Option) (*Collector, *fakeClock, *bytes.Buffer) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 14, 9, 26, 53, 589_000_000, time.UTC)}
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	base := []Option{
		WithClock(clock.Now),
		WithLogger(logger),
		WithPlatform(domain.PlatformIOS),
		WithVersion("1.4.2"),
	}
	return NewCollector(append(base, opts...)...), clock, &logs
}

func input(duration int64) domain.ChatMetricInput {
	return domain.ChatMetricInput{
		MessageLength: 20,
		Language:      domain.LanguageEnglish,
		ChatMode:      domain.ChatModeFull,
		TotalDuration: duration,
	}
}

type logLine struct {
	Level string `json:"level"`
	Msg   string `json:"msg"`
	Attrs map[string]any
}

func readLogs(t *testing.T, buf *bytes.Buffer) []logLine {
	t.Helper()
	var lines []logLine
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for sc.Scan() {
		var attrs map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &attrs))
		lines = append(lines, logLine{
			Level: attrs["level"].(string),
			Msg:   attrs["msg"].(string),
			Attrs: attrs,
		})
	}
	return lines
}

func TestCollector_RecordStampsMetadata(t *testing.T) {
	c, _, _ := newTestCollector(t)

	got := c.Record(input(1500))

	assert.Equal(t, "2026-03-14T09:26:53.589Z", got.Timestamp)
	assert.Equal(t, domain.PlatformIOS, got.Platform)
	assert.Equal(t, "1.4.2", got.Version)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, got, c.Snapshot()[0])
}

func TestCollector_RecordCopiesCallerState(t *testing.T) {
	c, _, _ := newTestCollector(t)
	quality := 4
	in := input(100)
	in.CrisisIndicators = []string{"isolation"}
	in.AIResponseQuality = &quality

	c.Record(in)
	in.CrisisIndicators[0] = "changed"
	quality = 1

	stored := c.Snapshot()[0]
	assert.Equal(t, []string{"isolation"}, stored.CrisisIndicators)
	assert.Equal(t, 4, *stored.AIResponseQuality)
}

func TestCollector_MinimalMetricDoesNotPanic(t *testing.T) {
	c := NewCollector(WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
	assert.NotPanics(t, func() {
		c.Record(domain.ChatMetricInput{})
	})
	assert.Equal(t, 1, c.Len())
	assert.NotEmpty(t, c.Snapshot()[0].Platform)
}

func TestCollector_CapacityEvictsOldest(t *testing.T) {
	c, _, _ := newTestCollector(t)

	for i := 1; i <= 1200; i++ {
		c.Record(domain.ChatMetricInput{MessageLength: i, TotalDuration: int64(i)})
	}

	assert.Equal(t, 1000, c.Aggregate().TotalMessages)
	snap := c.Snapshot()
	require.Len(t, snap, 1000)
	assert.Equal(t, 201, snap[0].MessageLength, "oldest 200 must be evicted")
	assert.Equal(t, 1200, snap[999].MessageLength)
	for i := 1; i < len(snap); i++ {
		assert.Equal(t, snap[i-1].MessageLength+1, snap[i].MessageLength)
	}
}

func TestCollector_CustomCapacity(t *testing.T) {
	c, _, _ := newTestCollector(t, WithCapacity(3))
	for i := 1; i <= 5; i++ {
		c.Record(domain.ChatMetricInput{MessageLength: i})
	}
	snap := c.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, []int{3, 4, 5}, []int{snap[0].MessageLength, snap[1].MessageLength, snap[2].MessageLength})
}

func TestCollector_AggregateEmpty(t *testing.T) {
	c, _, _ := newTestCollector(t)
	c.Record(input(100))
	c.Clear()

	assert.Equal(t, domain.AggregatedMetrics{
		LanguageDistribution: domain.LanguageDistribution{En: 0, Ar: 0},
		ChatModeUsage:        domain.ChatModeUsage{Floating: 0, Full: 0},
	}, c.Aggregate())
}

func TestCollector_AggregateRates(t *testing.T) {
	c, _, _ := newTestCollector(t)

	crisis := input(1000)
	crisis.CrisisDetected = true
	crisis.CrisisSeverity = domain.CrisisHigh
	failed := input(2000)
	failed.Error = "timeout after 30s"
	failed.ErrorType = domain.ChatErrorTimeout

	c.Record(crisis)
	c.Record(failed)
	c.Record(input(1500))

	agg := c.Aggregate()
	assert.Equal(t, 3, agg.TotalMessages)
	assert.InDelta(t, 1.0/3.0, agg.CrisisDetectionRate, 1e-9)
	assert.InDelta(t, 1.0/3.0, agg.ErrorRate, 1e-9)
	assert.Equal(t, 1500.0, agg.AverageResponseTime)
}

func TestCollector_AggregateHistograms(t *testing.T) {
	c, _, _ := newTestCollector(t)
	for _, tc := range []struct {
		lang domain.Language
		mode domain.ChatMode
	}{
		{domain.LanguageEnglish, domain.ChatModeFull},
		{domain.LanguageArabic, domain.ChatModeFloating},
		{domain.LanguageArabic, domain.ChatModeFull},
		{"fr", "sidebar"},
	} {
		c.Record(domain.ChatMetricInput{Language: tc.lang, ChatMode: tc.mode})
	}

	agg := c.Aggregate()
	assert.Equal(t, domain.LanguageDistribution{En: 1, Ar: 2}, agg.LanguageDistribution)
	assert.Equal(t, domain.ChatModeUsage{Floating: 1, Full: 2}, agg.ChatModeUsage)
	assert.Equal(t, 4, agg.TotalMessages)
}

func TestCollector_AggregatePercentile(t *testing.T) {
	c, _, _ := newTestCollector(t, WithSlowThreshold(time.Hour))
	for i := 1; i <= 100; i++ {
		c.Record(input(int64(i * 100)))
	}

	assert.Equal(t, int64(9500), c.Aggregate().PerformanceP95)
}

func TestCollector_AggregateQuality(t *testing.T) {
	c, _, _ := newTestCollector(t)
	c.Record(input(10))
	assert.Equal(t, 0.0, c.Aggregate().QualityScore)

	for _, q := range []int{5, 3} {
		in := input(10)
		in.AIResponseQuality = &q
		c.Record(in)
	}
	assert.Equal(t, 4.0, c.Aggregate().QualityScore)
}

func TestCollector_ClearIsIdempotent(t *testing.T) {
	c, _, _ := newTestCollector(t)
	c.Record(input(10))

	assert.NotPanics(t, func() {
		c.Clear()
		c.Clear()
	})
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Snapshot())

	c.Record(input(20))
	assert.Equal(t, 1, c.Len())
}

func TestCollector_InRange(t *testing.T) {
	c, clock, _ := newTestCollector(t)
	start := clock.Now()

	for i := 0; i < 5; i++ {
		c.Record(domain.ChatMetricInput{MessageLength: i})
		clock.Advance(time.Minute)
	}

	got := c.InRange(start.Add(time.Minute), start.Add(3*time.Minute))
	require.Len(t, got, 3, "bounds are inclusive")
	assert.Equal(t, 1, got[0].MessageLength)
	assert.Equal(t, 3, got[2].MessageLength)

	assert.Empty(t, c.InRange(start.Add(time.Hour), start.Add(2*time.Hour)))
	assert.Len(t, c.InRange(time.Time{}, start.Add(time.Hour)), 5)
}

func TestCollector_Export(t *testing.T) {
	c, _, _ := newTestCollector(t)
	c.Record(input(1000))
	c.Record(input(3000))

	data, err := c.ExportJSON()
	require.NoError(t, err)

	var export domain.MetricsExport
	require.NoError(t, json.Unmarshal(data, &export))
	assert.Equal(t, "2026-03-14T09:26:53.589Z", export.ExportTime)
	assert.Equal(t, 2, export.Aggregated.TotalMessages)
	assert.Equal(t, 2000.0, export.Aggregated.AverageResponseTime)
	require.Len(t, export.Detailed, 2)
	assert.Equal(t, "1.4.2", export.Detailed[1].Version)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "exportTime")
	assert.Contains(t, raw, "aggregated")
	assert.Contains(t, raw, "detailed")
}

func TestCollector_ConcurrentRecord(t *testing.T) {
	c, _, _ := newTestCollector(t, WithCapacity(500))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.Record(input(10))
				_ = c.Aggregate()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 500, c.Len())
}

func TestCollector_Diagnostics(t *testing.T) {
	tests := []struct {
		name     string
		in       domain.ChatMetricInput
		wantMsgs []string
	}{
		{
			name: "quiet",
			in:   input(9000),
		},
		{
			name:     "slow response",
			in:       input(10001),
			wantMsgs: []string{"slow chat response"},
		},
		{
			name: "threshold is exclusive",
			in:   input(10000),
		},
		{
			name: "error",
			in: func() domain.ChatMetricInput {
				in := input(200)
				in.Error = "network down"
				in.ErrorType = domain.ChatErrorNetwork
				return in
			}(),
			wantMsgs: []string{"chat round-trip failed"},
		},
		{
			name: "non-critical crisis stays quiet",
			in: func() domain.ChatMetricInput {
				in := input(200)
				in.CrisisDetected = true
				in.CrisisSeverity = domain.CrisisHigh
				return in
			}(),
		},
		{
			name: "all three",
			in: func() domain.ChatMetricInput {
				in := input(20000)
				in.Error = "upstream 500"
				in.ErrorType = domain.ChatErrorAPI
				in.CrisisDetected = true
				in.CrisisSeverity = domain.CrisisCritical
				in.CrisisIndicators = []string{"self-harm"}
				return in
			}(),
			wantMsgs: []string{"slow chat response", "chat round-trip failed", "critical crisis detected"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, logs := newTestCollector(t)
			c.Record(tt.in)

			lines := readLogs(t, logs)
			var msgs []string
			for _, l := range lines {
				msgs = append(msgs, l.Msg)
				assert.Equal(t, "metrics", l.Attrs["component"])
			}
			assert.Equal(t, tt.wantMsgs, msgs)
		})
	}
}

func TestCollector_DiagnosticFields(t *testing.T) {
	c, _, logs := newTestCollector(t)
	in := input(12000)
	in.ContextSize = 7
	in.ChatMode = domain.ChatModeFloating
	in.Language = domain.LanguageArabic
	in.Error = "bad json"
	in.ErrorType = domain.ChatErrorParsing
	in.CrisisDetected = true
	in.CrisisSeverity = domain.CrisisCritical
	in.CrisisIndicators = []string{"a", "b"}
	c.Record(in)

	lines := readLogs(t, logs)
	require.Len(t, lines, 3)

	slow := lines[0]
	assert.Equal(t, "WARN", slow.Level)
	assert.Equal(t, float64(12000), slow.Attrs["duration_ms"])
	assert.Equal(t, float64(20), slow.Attrs["message_length"])
	assert.Equal(t, float64(7), slow.Attrs["context_size"])
	assert.Equal(t, "floating", slow.Attrs["chat_mode"])

	failed := lines[1]
	assert.Equal(t, "ERROR", failed.Level)
	assert.Equal(t, "bad json", failed.Attrs["error"])
	assert.Equal(t, "parsing", failed.Attrs["error_type"])
	assert.Equal(t, "ar", failed.Attrs["language"])

	crisis := lines[2]
	assert.Equal(t, "WARN", crisis.Level)
	assert.Equal(t, "critical", crisis.Attrs["severity"])
	assert.Equal(t, []any{"a", "b"}, crisis.Attrs["indicators"])
}
