package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/companion-core/internal/domain"
	"github.com/tjfontaine/companion-core/internal/pkg/safehttp"
)

const (
	defaultForwardTimeout = 10 * time.Second
	maxErrorBody          = 1024
)

// Forwarder posts metrics exports to a remote collector.
type Forwarder struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *slog.Logger
}

// ForwarderOption configures a Forwarder.
type ForwarderOption func(*Forwarder)

// WithHTTPClient replaces the default instrumented client.
func WithHTTPClient(c *http.Client) ForwarderOption {
	return func(f *Forwarder) {
		if c != nil {
			f.client = c
		}
	}
}

// WithPrivateNetworkGuard routes requests through a transport that refuses
// loopback, private and link-local peers.
func WithPrivateNetworkGuard() ForwarderOption {
	return func(f *Forwarder) {
		f.client = &http.Client{
			Timeout:   defaultForwardTimeout,
			Transport: otelhttp.NewTransport(safehttp.NewTransport()),
		}
	}
}

// WithForwarderLogger sets the logger.
func WithForwarderLogger(logger *slog.Logger) ForwarderOption {
	return func(f *Forwarder) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewForwarder returns a Forwarder for endpoint, which must be an absolute
// http or https URL. An empty apiKey sends no Authorization header.
func NewForwarder(endpoint, apiKey string, opts ...ForwarderOption) (*Forwarder, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid telemetry endpoint: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid telemetry endpoint %q: must be an absolute http(s) URL", endpoint)
	}

	f := &Forwarder{
		endpoint: endpoint,
		apiKey:   apiKey,
		client: &http.Client{
			Timeout:   defaultForwardTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Endpoint returns the collector URL.
func (f *Forwarder) Endpoint() string { return f.endpoint }

// Forward sends export as JSON. Any non-2xx response is an error carrying
// the status code and the start of the response body.
func (f *Forwarder) Forward(ctx context.Context, export domain.MetricsExport) error {
	body, err := json.Marshal(export)
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("forward metrics: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("forward metrics: unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	f.logger.Debug("metrics export forwarded",
		slog.String("endpoint", f.endpoint),
		slog.Int("status", resp.StatusCode),
		slog.Int("total_messages", export.Aggregated.TotalMessages),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}
