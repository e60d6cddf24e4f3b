package runtime

import (
	"errors"
	"log/slog"

	"github.com/tjfontaine/companion-core/internal/exporter"
	"github.com/tjfontaine/companion-core/internal/storage"
)

// Option is a functional option for configuring an App.
type Option func(*App) error

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		a.logger = logger
		return nil
	}
}

// WithAddr overrides the listen address derived from server.port.
func WithAddr(addr string) Option {
	return func(a *App) error {
		a.addr = addr
		return nil
	}
}

// WithStore replaces the archive selected by storage.type. A nil store
// disables archiving.
func WithStore(store storage.ExportStore) Option {
	return func(a *App) error {
		a.store = store
		a.storeSet = true
		return nil
	}
}

// WithSink replaces the forwarder built from telemetry.endpoint.
func WithSink(sink exporter.Sink) Option {
	return func(a *App) error {
		a.sink = sink
		return nil
	}
}
