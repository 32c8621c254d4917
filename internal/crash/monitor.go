package crash

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/agentbox/agentbox/internal/history"
	"github.com/agentbox/agentbox/internal/metrics"
	"github.com/agentbox/agentbox/internal/target"
	"github.com/shirou/gopsutil/v4/mem"
)

// TailFunc returns recent kernel log lines, newest last.
type TailFunc func(ctx context.Context) ([]string, error)

// SessionCounter reports the number of live terminal sessions.
type SessionCounter func() (int, error)

// Monitor is the long-running OOM detection loop.
type Monitor struct {
	tail     TailFunc
	target   target.Target
	sessions SessionCounter
	log      *Log
	sinks    []history.Sink
	interval time.Duration
	logger   *slog.Logger

	// lastSeen de-duplicates: the most recent OOM line already reported.
	lastSeen string
}

// NewMonitor builds a Monitor. tail may be nil (defaults to journalctl
// with a dmesg fallback); sessions may be nil (reports 0).
func NewMonitor(tail TailFunc, tg target.Target, sessions SessionCounter, log *Log, sinks []history.Sink, interval time.Duration, logger *slog.Logger) (*Monitor, error) {
	if tg == nil {
		return nil, fmt.Errorf("crash monitor: nil target")
	}
	if log == nil {
		return nil, fmt.Errorf("crash monitor: nil crash log")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("crash monitor: interval must be positive")
	}
	if tail == nil {
		tail = KernelLogTail
	}
	if sessions == nil {
		sessions = func() (int, error) { return 0, nil }
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Monitor{
		tail:     tail,
		target:   tg,
		sessions: sessions,
		log:      log,
		sinks:    sinks,
		interval: interval,
		logger:   logger,
	}, nil
}

// Run loops until ctx is cancelled. Scan errors are logged and the loop
// continues; a missed scan only widens the detection window.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("crash monitor started", "interval", m.interval, "log", m.log.Path())
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		if _, err := m.ScanOnce(ctx); err != nil {
			m.logger.Error("crash scan failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ScanOnce inspects the log tail once and returns the appended event,
// if any.
func (m *Monitor) ScanOnce(ctx context.Context) (*Event, error) {
	lines, err := m.tail(ctx)
	if err != nil {
		return nil, fmt.Errorf("read kernel log: %w", err)
	}
	line := latestOOMLine(lines)
	if line == "" || line == m.lastSeen {
		return nil, nil
	}
	m.lastSeen = line

	e := Event{
		OccurredAt: time.Now(),
		Trigger:    "oom-killer",
		KernelLine: line,
	}
	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		e.MemoryMB = float64(vm.Used) / (1024 * 1024)
	}
	if sw, err := mem.SwapMemory(); err == nil && sw != nil {
		e.SwapMB = float64(sw.Used) / (1024 * 1024)
	}
	if snap, err := m.target.Snapshot(); err == nil {
		e.TargetProcs = snap.Count()
	}
	if n, err := m.sessions(); err == nil {
		e.Sessions = n
	}

	if err := m.log.Append(e); err != nil {
		return nil, err
	}
	metrics.IncCrashEvent(e.Trigger)
	m.logger.Error("OOM kill detected", "kernel_line", line,
		"memory_mb", e.MemoryMB, "target_procs", e.TargetProcs, "sessions", e.Sessions)

	for _, s := range m.sinks {
		if err := s.Send(ctx, e); err != nil {
			// Sinks are additive; a sink outage must not lose the
			// primary log entry.
			m.logger.Warn("crash sink send failed", "error", err)
		}
	}
	return &e, nil
}

// latestOOMLine returns the newest OOM indicator line, or "".
func latestOOMLine(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		if IsOOMLine(lines[i]) {
			return lines[i]
		}
	}
	return ""
}

// KernelLogTail reads recent kernel messages via journalctl, falling
// back to dmesg on systems without a journal.
func KernelLogTail(ctx context.Context) ([]string, error) {
	out, err := exec.CommandContext(ctx, "journalctl", "-k", "-n", "100", "--no-pager", "-o", "cat").Output()
	if err != nil {
		out, err = exec.CommandContext(ctx, "dmesg").Output()
		if err != nil {
			return nil, fmt.Errorf("journalctl and dmesg both unavailable: %w", err)
		}
	}
	text := strings.TrimSpace(string(out))
	if text == "" {
		return nil, nil
	}
	lines := strings.Split(text, "\n")
	if len(lines) > 100 {
		lines = lines[len(lines)-100:]
	}
	return lines, nil
}
