package crash

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agentbox/agentbox/internal/history"
	"github.com/agentbox/agentbox/internal/target"
)

func TestIsOOMLine(t *testing.T) {
	cases := []struct {
		line string
		want bool
	}{
		{"Out of memory: Killed process 4242 (node) total-vm:20000000kB", true},
		{"oom-kill:constraint=CONSTRAINT_NONE,nodemask=(null)", true},
		{"Memory cgroup out of memory: Killed process 777 (claude)", true},
		{"usb 1-1: new high-speed USB device", false},
		{"", false},
	}
	for _, c := range cases {
		if got := IsOOMLine(c.line); got != c.want {
			t.Fatalf("IsOOMLine(%q) = %v, want %v", c.line, got, c.want)
		}
	}
}

func TestFormatBlockFixedFields(t *testing.T) {
	e := Event{
		OccurredAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Trigger:     "oom-killer",
		MemoryMB:    13250,
		SwapMB:      2048,
		TargetProcs: 3,
		Sessions:    1,
		KernelLine:  "Out of memory: Killed process 4242 (node)",
	}
	block := FormatBlock(e)
	for _, want := range []string{
		"==== crash event ====",
		"time: 2025-06-01T12:00:00Z",
		"trigger: oom-killer",
		"memory_mb: 13250",
		"target_procs: 3",
		"sessions: 1",
		"kernel: Out of memory",
	} {
		if !strings.Contains(block, want) {
			t.Fatalf("block missing %q:\n%s", want, block)
		}
	}
}

func TestLogAppendAndTail(t *testing.T) {
	l := NewLog(filepath.Join(t.TempDir(), "crash.log"))
	for i := 0; i < 3; i++ {
		e := Event{OccurredAt: time.Now(), Trigger: "oom-killer", TargetProcs: i}
		if err := l.Append(e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	blocks, err := l.Tail(2)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("Tail returned %d blocks, want 2", len(blocks))
	}
	if !strings.Contains(blocks[1], "target_procs: 2") {
		t.Fatalf("newest block not last: %v", blocks)
	}
}

func TestTailMissingLog(t *testing.T) {
	l := NewLog(filepath.Join(t.TempDir(), "missing.log"))
	blocks, err := l.Tail(5)
	if err != nil || blocks != nil {
		t.Fatalf("missing log should yield nil, nil; got %v, %v", blocks, err)
	}
}

// recordingSink captures sent events.
type recordingSink struct {
	mu     sync.Mutex
	events []history.Event
}

func (r *recordingSink) Send(_ context.Context, e history.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func staticTarget(pids ...int32) target.Target {
	return &target.PatternTarget{
		Patterns: []string{"x"},
		List: func() ([]target.ProcInfo, error) {
			out := make([]target.ProcInfo, len(pids))
			for i, p := range pids {
				out[i] = target.ProcInfo{PID: p, Cmdline: "x", RSS: 1024 * 1024}
			}
			return out, nil
		},
	}
}

func TestScanOnceDetectsAndDeduplicates(t *testing.T) {
	lines := []string{
		"systemd[1]: Started session",
		"Out of memory: Killed process 4242 (node)",
	}
	sink := &recordingSink{}
	l := NewLog(filepath.Join(t.TempDir(), "crash.log"))
	m, err := NewMonitor(
		func(context.Context) ([]string, error) { return lines, nil },
		staticTarget(1, 2),
		func() (int, error) { return 1, nil },
		l, []history.Sink{sink}, time.Second, nil,
	)
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}

	e, err := m.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	if e == nil {
		t.Fatalf("expected an event on first scan")
	}
	if e.Trigger != "oom-killer" || e.TargetProcs != 2 || e.Sessions != 1 {
		t.Fatalf("event fields wrong: %+v", e)
	}

	// Same tail again: no duplicate event.
	e, err = m.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("second ScanOnce: %v", err)
	}
	if e != nil {
		t.Fatalf("duplicate event emitted: %+v", e)
	}

	// A new OOM line is a new event.
	lines = append(lines, "Out of memory: Killed process 5151 (claude)")
	e, err = m.ScanOnce(context.Background())
	if err != nil || e == nil {
		t.Fatalf("third ScanOnce: e=%v err=%v", e, err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.events) != 2 {
		t.Fatalf("sink received %d events, want 2", len(sink.events))
	}

	blocks, err := l.Tail(0)
	if err != nil || len(blocks) != 2 {
		t.Fatalf("crash log has %d blocks, want 2 (%v)", len(blocks), err)
	}
}

func TestScanOnceNoIndicators(t *testing.T) {
	l := NewLog(filepath.Join(t.TempDir(), "crash.log"))
	m, err := NewMonitor(
		func(context.Context) ([]string, error) {
			return []string{"eth0: link up", "audit: rule added"}, nil
		},
		staticTarget(), nil, l, nil, time.Second, nil,
	)
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	e, err := m.ScanOnce(context.Background())
	if err != nil || e != nil {
		t.Fatalf("expected no event: e=%v err=%v", e, err)
	}
}

func TestNewMonitorValidation(t *testing.T) {
	l := NewLog("x")
	if _, err := NewMonitor(nil, nil, nil, l, nil, time.Second, nil); err == nil {
		t.Fatalf("nil target accepted")
	}
	if _, err := NewMonitor(nil, staticTarget(), nil, nil, nil, time.Second, nil); err == nil {
		t.Fatalf("nil log accepted")
	}
	if _, err := NewMonitor(nil, staticTarget(), nil, l, nil, 0, nil); err == nil {
		t.Fatalf("zero interval accepted")
	}
}
