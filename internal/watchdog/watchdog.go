// Package watchdog samples the target's aggregate resident memory on a
// fixed interval and escalates when thresholds are crossed: warn logs
// only, kill sends SIGTERM to every matched PID, waits a grace period,
// re-measures, and sends SIGKILL if the group is still over the limit.
// The loop never exits on its own; it is meant to run under a service
// manager that restarts it on crash.
package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"syscall"
	"time"

	"github.com/agentbox/agentbox/internal/metrics"
	"github.com/agentbox/agentbox/internal/target"
)

// KillFunc sends a signal to one process. Overridable in tests.
type KillFunc func(pid int32, sig syscall.Signal) error

// Config holds the watchdog thresholds and timing. KillMB must exceed
// WarnMB; config validation enforces this before a Watchdog is built.
type Config struct {
	WarnMB        float64
	KillMB        float64
	CheckInterval time.Duration
	GracePeriod   time.Duration
}

func (c Config) validate() error {
	if c.KillMB <= c.WarnMB {
		return fmt.Errorf("watchdog: kill threshold %.0f MB must exceed warn threshold %.0f MB", c.KillMB, c.WarnMB)
	}
	if c.CheckInterval <= 0 || c.GracePeriod <= 0 {
		return fmt.Errorf("watchdog: intervals must be positive")
	}
	return nil
}

// Watchdog is the long-running memory monitor.
type Watchdog struct {
	cfg    Config
	target target.Target
	kill   KillFunc
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration)
}

// New builds a Watchdog. logger may be nil; kill may be nil (defaults
// to syscall.Kill).
func New(cfg Config, tg target.Target, kill KillFunc, logger *slog.Logger) (*Watchdog, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if tg == nil {
		return nil, fmt.Errorf("watchdog: nil target")
	}
	if kill == nil {
		kill = defaultKill
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watchdog{cfg: cfg, target: tg, kill: kill, logger: logger, sleep: sleepCtx}, nil
}

// Run loops until ctx is cancelled. Sampling errors are logged and the
// loop continues; the target's health is independent of our own.
func (w *Watchdog) Run(ctx context.Context) error {
	w.logger.Info("watchdog started",
		"target", w.target.Describe(),
		"warn_mb", w.cfg.WarnMB,
		"kill_mb", w.cfg.KillMB,
		"interval", w.cfg.CheckInterval)
	ticker := time.NewTicker(w.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		if err := w.CheckOnce(ctx); err != nil {
			w.logger.Error("watchdog check failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// CheckOnce performs a single sample-and-act cycle.
func (w *Watchdog) CheckOnce(ctx context.Context) error {
	snap, err := w.target.Snapshot()
	if err != nil {
		return err
	}
	metrics.SetTargetMemoryMB(snap.MemoryMB)
	switch {
	case snap.MemoryMB > w.cfg.KillMB:
		w.logger.Error("kill threshold exceeded, terminating target",
			"memory_mb", snap.MemoryMB, "kill_mb", w.cfg.KillMB, "pids", snap.PIDs)
		return w.terminate(ctx, snap)
	case snap.MemoryMB > w.cfg.WarnMB:
		metrics.IncWatchdogWarning()
		w.logger.Warn("memory above warn threshold",
			"memory_mb", snap.MemoryMB, "warn_mb", w.cfg.WarnMB, "pids", snap.PIDs)
	default:
		w.logger.Debug("memory within limits", "memory_mb", snap.MemoryMB)
	}
	return nil
}

// terminate sends SIGTERM to every matched PID, waits the grace period,
// re-measures, and escalates to SIGKILL when the group is still over
// the kill threshold.
func (w *Watchdog) terminate(ctx context.Context, snap target.Snapshot) error {
	w.signalAll(snap.PIDs, syscall.SIGTERM)
	metrics.IncWatchdogTermination("SIGTERM")

	w.sleep(ctx, w.cfg.GracePeriod)
	if err := ctx.Err(); err != nil {
		return err
	}

	after, err := w.target.Snapshot()
	if err != nil {
		return fmt.Errorf("re-measure after SIGTERM: %w", err)
	}
	metrics.SetTargetMemoryMB(after.MemoryMB)
	if after.MemoryMB <= w.cfg.KillMB {
		w.logger.Info("target recovered after SIGTERM", "memory_mb", after.MemoryMB)
		return nil
	}
	w.logger.Error("target still over limit after grace period, escalating",
		"memory_mb", after.MemoryMB, "pids", after.PIDs)
	w.signalAll(after.PIDs, syscall.SIGKILL)
	metrics.IncWatchdogTermination("SIGKILL")
	return nil
}

func (w *Watchdog) signalAll(pids []int32, sig syscall.Signal) {
	for _, pid := range pids {
		if err := w.kill(pid, sig); err != nil {
			// The process may have exited between sample and signal.
			w.logger.Debug("signal failed", "pid", pid, "signal", sig, "error", err)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
