// Package exporter snapshots the metrics collector into the export archive
// and forwards it to a remote collector, on demand or on a cron schedule.
package exporter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tjfontaine/companion-core/internal/domain"
	"github.com/tjfontaine/companion-core/internal/storage"
	"github.com/tjfontaine/companion-core/internal/telemetry"
)

// Source produces export snapshots. *metrics.Collector satisfies it.
type Source interface {
	Export() domain.MetricsExport
}

// Sink receives export snapshots. *telemetry.Forwarder satisfies it.
type Sink interface {
	Forward(ctx context.Context, export domain.MetricsExport) error
}

// Exporter archives and forwards metrics exports.
type Exporter struct {
	source Source
	store  storage.ExportStore
	sink   Sink
	logger *slog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
	newID func() string
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithStore archives every export. Without it exports are only forwarded.
func WithStore(s storage.ExportStore) Option {
	return func(e *Exporter) { e.store = s }
}

// WithSink forwards every export.
func WithSink(s Sink) Option {
	return func(e *Exporter) { e.sink = s }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the clock and timer used by the scheduler.
func WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) Option {
	return func(e *Exporter) {
		if now != nil {
			e.now = now
		}
		if after != nil {
			e.after = after
		}
	}
}

// New creates an Exporter reading from source.
func New(source Source, opts ...Option) *Exporter {
	e := &Exporter{
		source: source,
		logger: slog.Default(),
		now:    time.Now,
		after:  time.After,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(slog.String("component", "exporter"))
	return e
}

// RunOnce takes one snapshot, archives it and forwards it. Archive and
// forward failures are logged and returned joined; the record is returned
// either way so callers can still report what was attempted.
func (e *Exporter) RunOnce(ctx context.Context) (*storage.ExportRecord, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "exporter.RunOnce")
	defer span.End()

	export := e.source.Export()
	payload, err := json.Marshal(export)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "marshal export")
		return nil, fmt.Errorf("marshal export: %w", err)
	}

	rec := &storage.ExportRecord{
		ID:            e.newID(),
		CreatedAt:     e.now().UTC(),
		TotalMessages: export.Aggregated.TotalMessages,
		Payload:       payload,
	}
	span.SetAttributes(
		attribute.String("export.id", rec.ID),
		attribute.Int("export.total_messages", rec.TotalMessages),
	)

	var errs []error
	if e.store != nil {
		if err := e.store.SaveExport(ctx, rec); err != nil {
			e.logger.Error("failed to archive export", slog.String("id", rec.ID), slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("archive export: %w", err))
		}
	}
	if e.sink != nil {
		if err := e.sink.Forward(ctx, export); err != nil {
			e.logger.Error("failed to forward export", slog.String("id", rec.ID), slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("forward export: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "export incomplete")
		return rec, err
	}

	e.logger.Info("metrics exported",
		slog.String("id", rec.ID),
		slog.Int("total_messages", rec.TotalMessages),
	)
	return rec, nil
}

// ValidateSchedule reports whether schedule is a cron expression gronx accepts.
func ValidateSchedule(schedule string) error {
	if !gronx.New().IsValid(schedule) {
		return fmt.Errorf("invalid export schedule %q", schedule)
	}
	return nil
}

// Start validates schedule and runs the export loop in the background
// until ctx is done.
func (e *Exporter) Start(ctx context.Context, schedule string) error {
	if err := ValidateSchedule(schedule); err != nil {
		return err
	}
	go func() {
		if err := e.Run(ctx, schedule); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Error("export scheduler stopped", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Run blocks, calling RunOnce at every tick of schedule. It returns the
// context error once ctx is done, or the scheduling error if the next tick
// cannot be computed.
func (e *Exporter) Run(ctx context.Context, schedule string) error {
	if err := ValidateSchedule(schedule); err != nil {
		return err
	}
	e.logger.Info("export scheduler started", slog.String("schedule", schedule))

	for {
		now := e.now()
		next, err := gronx.NextTickAfter(schedule, now, false)
		if err != nil {
			return fmt.Errorf("next export tick: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.after(next.Sub(now)):
		}

		// Failures are already logged; the schedule keeps going.
		_, _ = e.RunOnce(ctx)
	}
}
