// Package server exposes the window builder, the metrics collector and the
// export archive over HTTP.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/companion-core/internal/exporter"
	"github.com/tjfontaine/companion-core/internal/metrics"
	"github.com/tjfontaine/companion-core/internal/storage"
	"github.com/tjfontaine/companion-core/internal/tokens"
)

// DefaultRequestTimeout bounds each request unless WithRequestTimeout is set.
const DefaultRequestTimeout = 30 * time.Second

// Server routes HTTP requests to the collector and its companions.
type Server struct {
	Router *chi.Mux

	collector *metrics.Collector
	exporter  *exporter.Exporter
	store     storage.ExportStore
	counter   tokens.Counter
	logger    *slog.Logger
	timeout   time.Duration
	now       func() time.Time
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStore enables the /v1/exports routes.
func WithStore(store storage.ExportStore) Option {
	return func(s *Server) { s.store = store }
}

// WithExporter sets the exporter behind POST /v1/metrics/export. Without
// it the server builds one over the collector and store.
func WithExporter(e *exporter.Exporter) Option {
	return func(s *Server) { s.exporter = e }
}

// WithCounter sets the token counter used for window responses.
func WithCounter(c tokens.Counter) Option {
	return func(s *Server) {
		if c != nil {
			s.counter = c
		}
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock overrides the clock used for window timestamps and range defaults.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds the router around collector.
func New(collector *metrics.Collector, opts ...Option) *Server {
	s := &Server{
		collector: collector,
		counter:   tokens.NewEstimator(),
		logger:    slog.Default(),
		timeout:   DefaultRequestTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.exporter == nil {
		eopts := []exporter.Option{exporter.WithLogger(s.logger)}
		if s.store != nil {
			eopts = append(eopts, exporter.WithStore(s.store))
		}
		s.exporter = exporter.New(collector, eopts...)
	}

	s.Router = s.routes()
	return s
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(s.logger))
	r.Use(TimeoutMiddleware(s.timeout))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "companion-core")
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, notFound("no route for "+r.Method+" "+r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, methodNotAllowed(r.Method+" not allowed on "+r.URL.Path))
	})

	r.Get("/healthz", s.handleHealth)

	r.Post("/v1/chat/window", s.handleWindow)

	r.Post("/v1/metrics", s.handleRecord)
	r.Get("/v1/metrics", s.handleInRange)
	r.Delete("/v1/metrics", s.handleClear)
	r.Get("/v1/metrics/aggregate", s.handleAggregate)
	r.Get("/v1/metrics/export", s.handleExport)
	r.Post("/v1/metrics/export", s.handleRunExport)

	r.Get("/v1/exports", s.handleListExports)
	r.Get("/v1/exports/{id}", s.handleGetExport)

	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}
