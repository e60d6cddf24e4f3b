package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/companion-core/internal/runtime"
	"github.com/tjfontaine/companion-core/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Long: "Serve the window builder and the metrics collector over HTTP, archive " +
			"exports and forward them on the configured schedule.",
		Example: "  companion-core serve --config config.yaml\n" +
			"  COMPANION_SERVER__PORT=9000 companion-core serve --log-format text",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			logger, err := newLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			if cfg.Telemetry.Tracing {
				shutdown, err := telemetry.InitTracer(appName, cfg.App.Version, logger)
				if err != nil {
					return fmt.Errorf("initialize tracer: %w", err)
				}
				defer func() {
					if err := shutdown(context.Background()); err != nil {
						logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
					}
				}()
			}

			app, err := runtime.New(cfg, runtime.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("create app: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := app.Start(ctx); err != nil {
				return fmt.Errorf("start app: %w", err)
			}

			<-ctx.Done()
			logger.Info("Shutdown signal received, stopping")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return app.Shutdown(shutdownCtx)
		},
	}
}
