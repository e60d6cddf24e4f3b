package metrics

import (
	"log/slog"

	"github.com/tjfontaine/companion-core/internal/domain"
)

// diagnose runs the per-insert threshold checks. The checks are independent;
// any combination may fire for a single metric.
func (c *Collector) diagnose(m domain.ChatMetric) {
	if m.TotalDuration > c.slowThreshold.Milliseconds() {
		c.logger.Warn("slow chat response",
			slog.Int64("duration_ms", m.TotalDuration),
			slog.Int("message_length", m.MessageLength),
			slog.Int("context_size", m.ContextSize),
			slog.String("chat_mode", string(m.ChatMode)),
		)
	}

	if m.HasError() {
		c.logger.Error("chat round-trip failed",
			slog.String("error", m.Error),
			slog.String("error_type", string(m.ErrorType)),
			slog.Int("message_length", m.MessageLength),
			slog.String("language", string(m.Language)),
		)
	}

	if m.CrisisDetected && m.CrisisSeverity == domain.CrisisCritical {
		c.logger.Warn("critical crisis detected",
			slog.String("severity", string(m.CrisisSeverity)),
			slog.Any("indicators", m.CrisisIndicators),
			slog.String("language", string(m.Language)),
		)
	}
}
