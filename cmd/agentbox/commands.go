package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentbox/agentbox/internal/bootstrap"
	"github.com/agentbox/agentbox/internal/config"
	"github.com/agentbox/agentbox/internal/crash"
	"github.com/agentbox/agentbox/internal/health"
	"github.com/agentbox/agentbox/internal/history"
	"github.com/agentbox/agentbox/internal/history/factory"
	"github.com/agentbox/agentbox/internal/launcher"
	"github.com/agentbox/agentbox/internal/logger"
	"github.com/agentbox/agentbox/internal/marker"
	"github.com/agentbox/agentbox/internal/metrics"
	"github.com/agentbox/agentbox/internal/phase"
	"github.com/agentbox/agentbox/internal/server"
	"github.com/agentbox/agentbox/internal/session"
	"github.com/agentbox/agentbox/internal/target"
	"github.com/agentbox/agentbox/internal/watchdog"
)

type command struct {
	globals *GlobalFlags
}

func (c *command) loadConfig() (*config.Config, error) {
	return config.LoadConfig(c.globals.ConfigPath)
}

// slogFor builds a logger writing to the rotated file named component
// when log output is configured, stderr otherwise.
func slogFor(cfg *config.Config, component string) *slog.Logger {
	if w := cfg.Log.Writer(component); w != nil {
		return logger.New(w, slog.LevelInfo, false)
	}
	return logger.New(os.Stderr, slog.LevelInfo, true)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Bootstrap runs the phase sequence (or lists/resets phases).
func (c *command) Bootstrap(f BootstrapFlags) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	markerDir := cfg.MarkerDir()
	if f.MarkerDir != "" {
		markerDir = f.MarkerDir
	}
	markers, err := marker.New(markerDir)
	if err != nil {
		return err
	}
	phases := bootstrap.NewLibrary(cfg.Bootstrap, nil).Phases()

	if f.Reset != "" {
		return markers.Clear(f.Reset)
	}
	if f.List {
		for _, p := range phases {
			done, err := markers.Done(p.Name)
			if err != nil {
				return err
			}
			state := " "
			if done {
				state = "x"
			}
			fmt.Printf("[%s] %-22s %-8s %s\n", state, p.Name, p.FailureMode, p.Description)
		}
		return nil
	}

	log := slogFor(cfg, "bootstrap")
	runner := phase.NewRunner(markers, log)
	ctx, cancel := signalContext()
	defer cancel()

	if f.Only != "" {
		for _, p := range phases {
			if p.Name == f.Only {
				_, err := runner.RunOnce(ctx, p)
				return err
			}
		}
		return fmt.Errorf("unknown phase %q", f.Only)
	}
	return runner.RunAll(ctx, phases)
}

func buildReporter(cfg *config.Config) (*health.Reporter, error) {
	store, err := health.NewFileStore(cfg.MetricsFile(), cfg.Health.SampleCap)
	if err != nil {
		return nil, err
	}
	tg := &target.PatternTarget{Patterns: cfg.Watchdog.Patterns}
	tc := health.TrendConfig{
		MinSamples:        cfg.Health.MinSamples,
		WindowSamples:     cfg.Health.WindowSamples,
		SampleInterval:    cfg.Watchdog.CheckInterval,
		GrowthThresholdMB: cfg.Health.GrowthThresholdMB,
		StableBandMB:      cfg.Health.StableBandMB,
		KillThresholdMB:   cfg.Watchdog.KillMB,
		PredictCapMinutes: cfg.Health.PredictCapMinutes,
	}
	return health.NewReporter(tg, store, tc, cfg.Session.DefaultWorkDir)
}

// Health prints a vitals report, a trend projection, or watches.
func (c *command) Health(f HealthFlags) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	rep, err := buildReporter(cfg)
	if err != nil {
		return err
	}
	// Informational tool: report errors are printed, not fatal, so the
	// exit code stays 0 for scripting.
	if f.Trend {
		t, err := rep.Trend()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return nil
		}
		printJSON(t)
		return nil
	}
	report := func() error {
		v, err := rep.Report()
		if err != nil {
			return err
		}
		fmt.Print(health.Format(v))
		return nil
	}
	if !f.Watch {
		if err := report(); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		return nil
	}

	interval := f.Interval
	if interval <= 0 {
		interval = cfg.Watchdog.CheckInterval
	}
	ctx, cancel := signalContext()
	defer cancel()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := report(); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Launch wraps argv in a memory-limited scope and reports the exit
// code to pass through.
func (c *command) Launch(rawLimit string, argv []string) (int, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return launcher.UsageExitCode, err
	}
	l := &launcher.Launcher{
		SystemdRun:   cfg.Launcher.SystemdRun,
		SwapHeadroom: cfg.Launcher.SwapHeadroom,
	}
	return l.Run(rawLimit, argv, nil)
}

// Session attaches to (creating if needed) a named tmux session.
func (c *command) Session(args []string) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	name := cfg.Session.DefaultName
	workdir := cfg.Session.DefaultWorkDir
	if len(args) > 0 {
		name = args[0]
	}
	if len(args) > 1 {
		workdir = args[1]
	}
	mgr, err := session.NewManager(cfg.SessionDir(), nil)
	if err != nil {
		return err
	}
	created, err := mgr.Ensure(name, workdir)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(os.Stderr, "created session %s in %s\n", name, workdir)
	}
	return nil
}

// Watchdog runs the memory watchdog loop until signalled.
func (c *command) Watchdog(f WatchdogFlags) error {
	if f.Daemonize {
		if err := daemonize(f.PidFile, f.LogFile); err != nil {
			return err
		}
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	log := slogFor(cfg, "watchdog")
	tg := &target.PatternTarget{Patterns: cfg.Watchdog.Patterns}
	w, err := watchdog.New(watchdog.Config{
		WarnMB:        cfg.Watchdog.WarnMB,
		KillMB:        cfg.Watchdog.KillMB,
		CheckInterval: cfg.Watchdog.CheckInterval,
		GracePeriod:   cfg.Watchdog.GracePeriod,
	}, tg, nil, log)
	if err != nil {
		return err
	}
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()
	defer func() { _ = removePidFile(f.PidFile) }()
	return w.Run(ctx)
}

// Crashmon runs the crash monitor loop until signalled.
func (c *command) Crashmon(f CrashmonFlags) error {
	if f.Daemonize {
		if err := daemonize(f.PidFile, f.LogFile); err != nil {
			return err
		}
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	log := slogFor(cfg, "crashmon")
	tg := &target.PatternTarget{Patterns: cfg.Watchdog.Patterns}

	var sinks []history.Sink
	if cfg.History.Enabled && cfg.History.DSN != "" {
		sink, err := factory.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			return fmt.Errorf("history sink: %w", err)
		}
		sinks = append(sinks, sink)
	}

	sessions, err := session.NewManager(cfg.SessionDir(), nil)
	if err != nil {
		return err
	}
	mon, err := crash.NewMonitor(
		nil, tg, sessions.LiveCount,
		crash.NewLog(cfg.CrashLog()),
		sinks, cfg.Watchdog.CheckInterval, log,
	)
	if err != nil {
		return err
	}
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()
	defer func() { _ = removePidFile(f.PidFile) }()
	return mon.Run(ctx)
}

// Serve runs the read-only status API until signalled.
func (c *command) Serve(f ServeFlags) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	listen := cfg.Server.Listen
	if f.Listen != "" {
		listen = f.Listen
	}
	basePath := cfg.Server.BasePath
	if f.BasePath != "" {
		basePath = f.BasePath
	}

	rep, err := buildReporter(cfg)
	if err != nil {
		return err
	}
	markers, err := marker.New(cfg.MarkerDir())
	if err != nil {
		return err
	}
	sessions, err := session.NewManager(cfg.SessionDir(), nil)
	if err != nil {
		return err
	}
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}
	router := server.NewRouter(rep, markers, crash.NewLog(cfg.CrashLog()), sessions, basePath)
	srv, err := server.NewServer(listen, router)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "status API listening on %s%s\n", listen, basePath)

	ctx, cancel := signalContext()
	defer cancel()
	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
