// Package config loads service configuration from an optional YAML file and
// COMPANION_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. Nested keys use a double
// underscore, e.g. COMPANION_STORAGE__SQLITE__PATH.
const EnvPrefix = "COMPANION_"

// DefaultPath is read when no config path is given.
const DefaultPath = "config.yaml"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	App       AppConfig       `koanf:"app"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Storage   StorageConfig   `koanf:"storage"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Tokens    TokensConfig    `koanf:"tokens"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, text
}

type AppConfig struct {
	Version string `koanf:"version"`
	// Platform overrides runtime detection when set.
	Platform string `koanf:"platform"`
}

type MetricsConfig struct {
	Capacity        int    `koanf:"capacity"`
	SlowThresholdMS int64  `koanf:"slow_threshold_ms"`
	ExportSchedule  string `koanf:"export_schedule"` // cron expression, empty disables
}

// SlowThreshold returns SlowThresholdMS as a duration.
func (m MetricsConfig) SlowThreshold() time.Duration {
	return time.Duration(m.SlowThresholdMS) * time.Millisecond
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // memory, sqlite, none
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type TelemetryConfig struct {
	Tracing  bool   `koanf:"tracing"`
	Endpoint string `koanf:"endpoint"`
	APIKey   string `koanf:"api_key"`
	// BlockPrivateNetworks refuses to forward to loopback or private addresses.
	BlockPrivateNetworks bool `koanf:"block_private_networks"`
}

type TokensConfig struct {
	Model string `koanf:"model"`
}

var defaults = map[string]any{
	"server.port":               8080,
	"server.request_timeout":    "30s",
	"log.level":                 "info",
	"log.format":                "json",
	"app.version":               "dev",
	"metrics.capacity":          1000,
	"metrics.slow_threshold_ms": 10000,
	"storage.type":              "memory",
	"storage.sqlite.path":       "./data/companion.db",
	"tokens.model":              "gpt-4o",
}

// Load reads path (DefaultPath when empty), applies environment overrides
// and defaults, and validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Telemetry.Endpoint = substituteEnvVars(cfg.Telemetry.Endpoint)
	cfg.Telemetry.APIKey = substituteEnvVars(cfg.Telemetry.APIKey)
	cfg.Storage.SQLite.Path = substituteEnvVars(cfg.Storage.SQLite.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.request_timeout must be positive"))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or text", c.Log.Format))
	}
	switch c.App.Platform {
	case "", "ios", "android", "web", "server":
	default:
		errs = append(errs, fmt.Errorf("app.platform %q is not a known platform", c.App.Platform))
	}
	if c.Metrics.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("metrics.capacity must be positive"))
	}
	if c.Metrics.SlowThresholdMS <= 0 {
		errs = append(errs, fmt.Errorf("metrics.slow_threshold_ms must be positive"))
	}
	if c.Metrics.ExportSchedule != "" && !gronx.New().IsValid(c.Metrics.ExportSchedule) {
		errs = append(errs, fmt.Errorf("metrics.export_schedule %q is not a valid cron expression", c.Metrics.ExportSchedule))
	}
	switch c.Storage.Type {
	case "memory", "none":
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			errs = append(errs, fmt.Errorf("storage.sqlite.path is required for sqlite storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type %q must be memory, sqlite or none", c.Storage.Type))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ParseLevel maps a log.level string to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level %q is not a known level", level)
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars expands ${VAR} references. Unset variables expand to "".
func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
