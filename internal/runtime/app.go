// Package runtime wires the collector, archive, forwarder, exporter and HTTP
// server together and manages their lifecycle.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tjfontaine/companion-core/internal/config"
	"github.com/tjfontaine/companion-core/internal/domain"
	"github.com/tjfontaine/companion-core/internal/exporter"
	"github.com/tjfontaine/companion-core/internal/metrics"
	"github.com/tjfontaine/companion-core/internal/server"
	"github.com/tjfontaine/companion-core/internal/storage"
	"github.com/tjfontaine/companion-core/internal/storage/memory"
	"github.com/tjfontaine/companion-core/internal/storage/sqlite"
	"github.com/tjfontaine/companion-core/internal/telemetry"
	"github.com/tjfontaine/companion-core/internal/tokens"
)

// App is a running companion-core service.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	addr   string

	collector *metrics.Collector
	store     storage.ExportStore
	storeSet  bool
	sink      exporter.Sink
	exporter  *exporter.Exporter
	server    *server.Server

	httpServer *http.Server
	listener   net.Listener

	cancel context.CancelFunc
	mu     sync.Mutex
}

// New builds an App from cfg. Nothing listens until Start.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}

	a := &App{
		cfg:    cfg,
		logger: slog.Default(),
		addr:   fmt.Sprintf(":%d", cfg.Server.Port),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	a.collector = metrics.NewCollector(
		metrics.WithCapacity(cfg.Metrics.Capacity),
		metrics.WithSlowThreshold(cfg.Metrics.SlowThreshold()),
		metrics.WithVersion(cfg.App.Version),
		metrics.WithPlatform(domain.Platform(cfg.App.Platform)),
		metrics.WithLogger(a.logger),
	)

	if !a.storeSet {
		store, err := openStore(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("open export store: %w", err)
		}
		a.store = store
	}

	if a.sink == nil && cfg.Telemetry.Endpoint != "" {
		fopts := []telemetry.ForwarderOption{telemetry.WithForwarderLogger(a.logger)}
		if cfg.Telemetry.BlockPrivateNetworks {
			fopts = append(fopts, telemetry.WithPrivateNetworkGuard())
		}
		fwd, err := telemetry.NewForwarder(cfg.Telemetry.Endpoint, cfg.Telemetry.APIKey, fopts...)
		if err != nil {
			a.closeStore()
			return nil, err
		}
		a.sink = fwd
	}

	eopts := []exporter.Option{exporter.WithLogger(a.logger)}
	if a.store != nil {
		eopts = append(eopts, exporter.WithStore(a.store))
	}
	if a.sink != nil {
		eopts = append(eopts, exporter.WithSink(a.sink))
	}
	a.exporter = exporter.New(a.collector, eopts...)

	sopts := []server.Option{
		server.WithLogger(a.logger),
		server.WithExporter(a.exporter),
		server.WithCounter(tokens.NewCounter(cfg.Tokens.Model)),
		server.WithRequestTimeout(cfg.Server.RequestTimeout),
	}
	if a.store != nil {
		sopts = append(sopts, server.WithStore(a.store))
	}
	a.server = server.New(a.collector, sopts...)

	return a, nil
}

// openStore returns nil for storage type "none".
func openStore(cfg config.StorageConfig) (storage.ExportStore, error) {
	switch cfg.Type {
	case "", "memory":
		return memory.New(), nil
	case "none":
		return nil, nil
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		return sqlite.New(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}
}

// Collector returns the app's metrics collector.
func (a *App) Collector() *metrics.Collector { return a.collector }

// Handler returns the HTTP handler without starting a listener.
func (a *App) Handler() http.Handler { return a.server }

// Addr returns the bound listen address once started.
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.addr
}

// Start binds the listener, serves HTTP in the background and starts the
// export schedule if one is configured.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.httpServer != nil {
		return errors.New("app already started")
	}

	ctx, cancel := context.WithCancel(ctx)

	if schedule := a.cfg.Metrics.ExportSchedule; schedule != "" {
		if err := a.exporter.Start(ctx, schedule); err != nil {
			cancel()
			return fmt.Errorf("start export schedule: %w", err)
		}
	}

	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		cancel()
		return fmt.Errorf("listen on %s: %w", a.addr, err)
	}

	a.listener = ln
	a.cancel = cancel
	a.httpServer = &http.Server{
		Handler:           a.server,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       a.cfg.Server.RequestTimeout,
		WriteTimeout:      a.cfg.Server.RequestTimeout + 5*time.Second,
	}

	go func() {
		a.logger.Info("HTTP server listening", slog.String("addr", ln.Addr().String()))
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("server error", slog.String("error", err.Error()))
		}
	}()

	a.logger.Info("companion-core started",
		slog.String("storage", a.cfg.Storage.Type),
		slog.Bool("forwarding", a.sink != nil),
		slog.String("export_schedule", a.cfg.Metrics.ExportSchedule),
		slog.Int("capacity", a.cfg.Metrics.Capacity),
	)
	return nil
}

// Shutdown stops the schedule, drains HTTP and closes the archive.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.logger.Info("shutting down")

	if a.cancel != nil {
		a.cancel()
	}

	var errs []error
	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if err := a.closeStore(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeStore() error {
	if a.store == nil {
		return nil
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close export store", slog.String("error", err.Error()))
		return err
	}
	return nil
}
