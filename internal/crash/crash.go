// Package crash watches the kernel log tail for out-of-memory kills and
// appends one structured block per detected event to the crash log.
// Detection is best-effort substring matching over recent lines: an
// event falling across a log-rotation boundary between two scans can be
// missed. That window is inherent to tail-based detection and is
// documented rather than papered over.
package crash

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/agentbox/agentbox/internal/history"
)

// Event is an alias for the exported crash record; the free-text log
// and the history sinks share one shape.
type Event = history.Event

// oomIndicators are the substrings scanned for in kernel log lines.
var oomIndicators = []string{
	"Out of memory",
	"oom-kill",
	"oom_reaper",
	"Memory cgroup out of memory",
	"Killed process",
}

// IsOOMLine reports whether a kernel log line indicates an OOM kill.
func IsOOMLine(line string) bool {
	for _, ind := range oomIndicators {
		if strings.Contains(line, ind) {
			return true
		}
	}
	return false
}

// FormatBlock renders the fixed free-text block appended to the crash
// log for one event.
func FormatBlock(e Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "==== crash event ====\n")
	fmt.Fprintf(&b, "time: %s\n", e.OccurredAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "trigger: %s\n", e.Trigger)
	fmt.Fprintf(&b, "memory_mb: %.0f\n", e.MemoryMB)
	fmt.Fprintf(&b, "swap_mb: %.0f\n", e.SwapMB)
	fmt.Fprintf(&b, "target_procs: %d\n", e.TargetProcs)
	fmt.Fprintf(&b, "sessions: %d\n", e.Sessions)
	if e.KernelLine != "" {
		fmt.Fprintf(&b, "kernel: %s\n", e.KernelLine)
	}
	b.WriteString("\n")
	return b.String()
}

// Log is the append-only free-text crash log. Entries are never
// modified or deleted here; rotation is an external concern.
type Log struct {
	path string
}

// NewLog returns a Log writing to path.
func NewLog(path string) *Log { return &Log{path: path} }

// Path returns the crash log location.
func (l *Log) Path() string { return l.path }

// Append writes one event block.
func (l *Log) Append(e Event) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open crash log: %w", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString(FormatBlock(e)); err != nil {
		return fmt.Errorf("append crash event: %w", err)
	}
	return nil
}

// Tail returns up to n most recent event blocks, oldest first.
func (l *Log) Tail(n int) ([]string, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	blocks := strings.Split(strings.TrimSpace(string(data)), "\n\n")
	if len(blocks) == 1 && blocks[0] == "" {
		return nil, nil
	}
	if n > 0 && len(blocks) > n {
		blocks = blocks[len(blocks)-n:]
	}
	return blocks, nil
}
