package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/companion-core/internal/config"
	"github.com/tjfontaine/companion-core/internal/conversation"
	"github.com/tjfontaine/companion-core/internal/domain"
	"github.com/tjfontaine/companion-core/internal/metrics"
	"github.com/tjfontaine/companion-core/internal/tokens"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func buildRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   appName,
		Short: "Chat context windows and round-trip metrics for the companion app",
		Long: strings.TrimSpace(`companion-core hosts the non-UI logic of the companion chat app:
the recent-message window sent with every chat request and the bounded
collector of chat round-trip metrics.

Run "serve" for the HTTP service, or use "window" and "aggregate" to work
with JSON files offline.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "Path to the YAML config file (missing file is fine)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Override log.format (json, text)")

	root.AddCommand(newServeCommand(opts))
	root.AddCommand(newWindowCommand())
	root.AddCommand(newAggregateCommand())
	root.AddCommand(newVersionCommand())

	return root
}

// loadConfig reads the config file and applies flag overrides.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	if cfg.App.Version == "dev" && version != "dev" {
		cfg.App.Version = version
	}
	return cfg, cfg.Validate()
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	hopts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(w, hopts)), nil
	case "json", "":
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  companion-core version",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, line := range versionLines() {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}

// openInput returns stdin for "-" or an empty path.
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

func readJSON(cmd *cobra.Command, path string, dst any) error {
	in, err := openInput(cmd, path)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := json.NewDecoder(in).Decode(dst); err != nil {
		return fmt.Errorf("decode input: %w", err)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type windowOutput struct {
	Messages      []domain.Message `json:"messages"`
	ContextTokens int              `json:"contextTokens"`
	Estimated     bool             `json:"estimated"`
}

func newWindowCommand() *cobra.Command {
	var (
		file      string
		message   string
		timestamp int64
		model     string
	)

	cmd := &cobra.Command{
		Use:   "window",
		Short: "Build the recent-message window for a transcript",
		Long: strings.TrimSpace(`Reads a JSON array of messages ({role, content, timestamp}) and prints the
window that accompanies the next outgoing message: the last 9 history
entries followed by the new user message, with its token count.`),
		Example: strings.Join([]string{
			"  companion-core window --file history.json --message \"I can't sleep\"",
			"  cat history.json | companion-core window -m hello --model gpt-4o-mini",
		}, "\n"),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var history []domain.Message
			if err := readJSON(cmd, file, &history); err != nil {
				return err
			}
			for i, m := range history {
				if !m.Role.Valid() {
					return fmt.Errorf("history[%d]: unknown role %q", i, m.Role)
				}
			}

			nowMS := timestamp
			if nowMS == 0 {
				nowMS = time.Now().UnixMilli()
			}
			window := conversation.BuildRecentMessagesAt(history, message, nowMS)
			counter := tokens.NewCounter(model)

			return printJSON(cmd.OutOrStdout(), windowOutput{
				Messages:      window,
				ContextTokens: counter.CountMessages(window),
				Estimated:     counter.Estimated(),
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "History JSON file, - for stdin")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Text of the new user message")
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "Epoch milliseconds for the new message (default now)")
	cmd.Flags().StringVar(&model, "model", "gpt-4o", "Model whose tokenizer counts the window")

	return cmd
}

func newAggregateCommand() *cobra.Command {
	var (
		file       string
		fullExport bool
		appVersion string
		platform   string
	)

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate a JSON array of chat metrics",
		Long: strings.TrimSpace(`Records every metric from a JSON array into a fresh collector (capacity
and diagnostics as in the service) and prints the aggregate, or the full
export with --export. Diagnostics are logged to stderr.`),
		Example: strings.Join([]string{
			"  companion-core aggregate --file metrics.json",
			"  companion-core aggregate --export --version 1.2.0 < metrics.json",
		}, "\n"),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var inputs []domain.ChatMetricInput
			if err := readJSON(cmd, file, &inputs); err != nil {
				return err
			}
			for i, in := range inputs {
				if apiErr := in.Validate(); apiErr != nil {
					return fmt.Errorf("metric[%d]: %w", i, apiErr)
				}
			}

			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
			collector := metrics.NewCollector(
				metrics.WithVersion(appVersion),
				metrics.WithPlatform(domain.Platform(platform)),
				metrics.WithLogger(logger),
			)
			for _, in := range inputs {
				collector.Record(in)
			}

			if fullExport {
				return printJSON(cmd.OutOrStdout(), collector.Export())
			}
			return printJSON(cmd.OutOrStdout(), collector.Aggregate())
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "Metrics JSON file, - for stdin")
	cmd.Flags().BoolVar(&fullExport, "export", false, "Print the full export instead of the aggregate")
	cmd.Flags().StringVar(&appVersion, "version", version, "App version stamped onto each metric")
	cmd.Flags().StringVar(&platform, "platform", "", "Platform stamped onto each metric (default detected)")

	return cmd
}
