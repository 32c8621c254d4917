package agentbox

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentbox/agentbox/internal/bootstrap"
	cfg "github.com/agentbox/agentbox/internal/config"
	"github.com/agentbox/agentbox/internal/crash"
	"github.com/agentbox/agentbox/internal/health"
	"github.com/agentbox/agentbox/internal/history"
	"github.com/agentbox/agentbox/internal/history/factory"
	"github.com/agentbox/agentbox/internal/launcher"
	"github.com/agentbox/agentbox/internal/marker"
	"github.com/agentbox/agentbox/internal/metrics"
	"github.com/agentbox/agentbox/internal/phase"
	iapi "github.com/agentbox/agentbox/internal/server"
	"github.com/agentbox/agentbox/internal/session"
	"github.com/agentbox/agentbox/internal/target"
	"github.com/agentbox/agentbox/internal/watchdog"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type Phase = phase.Phase

type FailureMode = phase.FailureMode

const (
	FailureModeFail   = phase.FailureModeFail
	FailureModeIgnore = phase.FailureModeIgnore
)

type Target = target.Target

type Snapshot = target.Snapshot

type Trend = health.Trend

type Vitals = health.Vitals

type CrashEvent = crash.Event

type HistorySink = history.Sink

type SessionRecord = session.Record

type Limit = launcher.Limit

func LoadConfig(path string) (*Config, error) { return cfg.LoadConfig(path) }

// NewMarkerStore opens (creating if needed) the marker directory.
func NewMarkerStore(dir string) (*marker.Store, error) { return marker.New(dir) }

// NewRunner builds a phase runner over the marker store. logger may be
// nil.
func NewRunner(markers *marker.Store, logger *slog.Logger) *phase.Runner {
	return phase.NewRunner(markers, logger)
}

// Phases builds the bootstrap phase sequence for a configuration.
func Phases(c cfg.Bootstrap) []Phase {
	return bootstrap.NewLibrary(c, nil).Phases()
}

// NewPatternTarget matches processes by command-line substrings.
func NewPatternTarget(patterns []string) Target {
	return &target.PatternTarget{Patterns: patterns}
}

// NewPIDTarget tracks an explicit process and its children.
func NewPIDTarget(pid int32) Target {
	return &target.PIDTarget{Root: pid}
}

// NewWatchdog builds the memory watchdog for a target. logger may be
// nil.
func NewWatchdog(c cfg.Watchdog, tg Target, logger *slog.Logger) (*watchdog.Watchdog, error) {
	return watchdog.New(watchdog.Config{
		WarnMB:        c.WarnMB,
		KillMB:        c.KillMB,
		CheckInterval: c.CheckInterval,
		GracePeriod:   c.GracePeriod,
	}, tg, nil, logger)
}

// ParseLimit parses a memory limit like "12G".
func ParseLimit(raw string) (Limit, error) { return launcher.ParseLimit(raw) }

// NewSinkFromDSN builds a crash-history sink from a DSN
// (sqlite:///path, postgres://..., clickhouse://host?table=...).
func NewSinkFromDSN(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// NewHTTPServer starts the read-only status API on addr.
func NewHTTPServer(addr string, r *iapi.Router) (*http.Server, error) {
	return iapi.NewServer(addr, r)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
