// Package metrics records chat round-trip metrics in a bounded in-memory
// buffer and derives aggregate statistics from it.
package metrics

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/tjfontaine/companion-core/internal/domain"
)

const (
	// DefaultCapacity is the number of metrics retained before the oldest is evicted.
	DefaultCapacity = 1000

	// DefaultSlowThreshold is the round-trip duration above which a slow
	// response diagnostic is logged.
	DefaultSlowThreshold = 10 * time.Second

	// TimestampLayout is the ISO-8601 layout used for metric and export timestamps.
	TimestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Collector is a session-local store of chat metrics. It is safe for
// concurrent use; inserts and evictions are serialized by a single lock.
type Collector struct {
	mu     sync.RWMutex
	buffer *ring

	now           func() time.Time
	platform      domain.Platform
	version       string
	slowThreshold time.Duration
	logger        *slog.Logger
}

// Option is a functional option for configuring a Collector.
type Option func(*Collector)

// WithCapacity bounds the buffer. Non-positive values keep the default.
func WithCapacity(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.buffer = newRing(n)
		}
	}
}

// WithClock overrides the time source used to stamp metrics.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		if now != nil {
			c.now = now
		}
	}
}

// WithPlatform overrides the detected runtime platform.
func WithPlatform(p domain.Platform) Option {
	return func(c *Collector) {
		if p != "" {
			c.platform = p
		}
	}
}

// WithVersion sets the app version stamped onto every metric.
func WithVersion(v string) Option {
	return func(c *Collector) {
		c.version = v
	}
}

// WithSlowThreshold overrides DefaultSlowThreshold.
func WithSlowThreshold(d time.Duration) Option {
	return func(c *Collector) {
		if d > 0 {
			c.slowThreshold = d
		}
	}
}

// WithLogger sets the diagnostic sink.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Collector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCollector creates an empty collector.
func NewCollector(opts ...Option) *Collector {
	c := &Collector{
		buffer:        newRing(DefaultCapacity),
		now:           time.Now,
		platform:      DetectPlatform(),
		version:       "dev",
		slowThreshold: DefaultSlowThreshold,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "metrics"))
	return c
}

// Record stamps in with the current time, platform and version, appends it
// to the buffer and emits any threshold diagnostics. It returns the stored
// record.
func (c *Collector) Record(in domain.ChatMetricInput) domain.ChatMetric {
	metric := c.stamp(in)

	c.mu.Lock()
	c.buffer.push(metric)
	c.mu.Unlock()

	c.diagnose(metric)
	return metric
}

// stamp builds the complete record. Caller-owned slices and pointers are
// copied so later mutation by the caller cannot reach the buffer.
func (c *Collector) stamp(in domain.ChatMetricInput) domain.ChatMetric {
	in.CrisisIndicators = slices.Clone(in.CrisisIndicators)
	in.ContextBuildDuration = clonePtr(in.ContextBuildDuration)
	in.APICallDuration = clonePtr(in.APICallDuration)
	in.ResponseProcessDuration = clonePtr(in.ResponseProcessDuration)
	in.AIResponseQuality = clonePtr(in.AIResponseQuality)
	in.UserSatisfaction = clonePtr(in.UserSatisfaction)

	return domain.ChatMetric{
		ChatMetricInput: in,
		Timestamp:       c.now().UTC().Format(TimestampLayout),
		Platform:        c.platform,
		Version:         c.version,
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Len returns the number of buffered metrics.
func (c *Collector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.buffer.len()
}

// Snapshot returns the buffered metrics oldest first.
func (c *Collector) Snapshot() []domain.ChatMetric {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.buffer.snapshot()
}

// Aggregate computes statistics over the current buffer.
func (c *Collector) Aggregate() domain.AggregatedMetrics {
	return Aggregate(c.Snapshot())
}

// InRange returns the buffered metrics whose timestamp lies within
// [start, end]. Entries with unparseable timestamps are skipped.
func (c *Collector) InRange(start, end time.Time) []domain.ChatMetric {
	var out []domain.ChatMetric
	for _, m := range c.Snapshot() {
		ts, err := time.Parse(time.RFC3339Nano, m.Timestamp)
		if err != nil {
			continue
		}
		if ts.Before(start) || ts.After(end) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Export returns the aggregate together with every buffered metric. Both
// are taken from the same buffer snapshot.
func (c *Collector) Export() domain.MetricsExport {
	detailed := c.Snapshot()
	return domain.MetricsExport{
		ExportTime: c.now().UTC().Format(TimestampLayout),
		Aggregated: Aggregate(detailed),
		Detailed:   detailed,
	}
}

// ExportJSON returns Export serialized as indented JSON.
func (c *Collector) ExportJSON() ([]byte, error) {
	data, err := json.MarshalIndent(c.Export(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal metrics export: %w", err)
	}
	return data, nil
}

// Clear empties the buffer. Clearing an empty collector is a no-op.
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffer.reset()
}
