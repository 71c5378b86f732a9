package app

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/specialistvlad/segmentgridgo/internal/fsutil"
	"github.com/specialistvlad/segmentgridgo/internal/search"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW       io.Writer
	logger     *slog.Logger
	config     *Config
	registry   *prometheus.Registry
	metrics    *search.Metrics
	enumerator fsutil.Enumerator
	httpClient *http.Client
	httpServer *http.Server
	now        func() time.Time
}

// Option customizes an App.
type Option func(*App)

// WithClock replaces time.Now for run directory and ranking file names.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// WithEnumerator replaces the filesystem used to discover reports.
func WithEnumerator(e fsutil.Enumerator) Option {
	return func(a *App) { a.enumerator = e }
}

// WithHTTPClient sets the client used for artifact uploads.
func WithHTTPClient(c *http.Client) Option {
	return func(a *App) { a.httpClient = c }
}

// NewApp is the constructor for the main application. Command output goes to
// outW and logs go to logW, each App owning its logger and metrics registry.
func NewApp(outW, logW io.Writer, cfg *Config, opts ...Option) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	logger.Debug("Logger configured successfully.")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	a := &App{
		outW:       outW,
		logger:     logger,
		config:     cfg,
		registry:   reg,
		metrics:    search.NewMetrics(reg),
		enumerator: fsutil.NewDir(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Registry returns the metrics registry served on /metrics. This is primarily for testing.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}
