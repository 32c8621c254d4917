// Package target identifies the watched process group and reports its
// aggregate resident memory. Two strategies exist: substring matching
// over process command lines (for targets started outside our launcher)
// and an explicit root-PID handle (established by the launcher). The
// heuristic matcher is isolated in Match so its behavior stays
// unit-testable.
package target

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// Snapshot is one observation of the target process group.
type Snapshot struct {
	PIDs     []int32 `json:"pids"`
	MemoryMB float64 `json:"memory_mb"`
}

// Count returns the number of matched processes.
func (s Snapshot) Count() int { return len(s.PIDs) }

// Target reports which processes belong to the watched group and how
// much resident memory they hold in aggregate.
// Implementations must be safe for concurrent use.
type Target interface {
	// Snapshot returns the current PIDs and aggregate RSS in MB.
	Snapshot() (Snapshot, error)
	// Describe returns a human-readable description of the strategy.
	Describe() string
}

// ProcInfo is the minimal process view the matcher needs. The default
// lister fills it from gopsutil; tests inject fixed slices.
type ProcInfo struct {
	PID     int32
	Cmdline string
	RSS     uint64 // bytes
}

// Lister enumerates candidate processes.
type Lister func() ([]ProcInfo, error)

// Match reports whether a command line belongs to the target: true when
// any pattern occurs as a substring. A false positive on an unrelated
// process whose command line happens to contain a pattern is an accepted
// limitation of this strategy.
func Match(cmdline string, patterns []string) bool {
	if cmdline == "" {
		return false
	}
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if strings.Contains(cmdline, p) {
			return true
		}
	}
	return false
}

// PatternTarget matches processes by command-line substrings.
type PatternTarget struct {
	Patterns []string
	// List overrides process enumeration (tests). Nil uses gopsutil.
	List Lister
}

func (t *PatternTarget) Snapshot() (Snapshot, error) {
	list := t.List
	if list == nil {
		list = systemProcesses
	}
	procs, err := list()
	if err != nil {
		return Snapshot{}, fmt.Errorf("list processes: %w", err)
	}
	var snap Snapshot
	var rss uint64
	for _, p := range procs {
		if !Match(p.Cmdline, t.Patterns) {
			continue
		}
		snap.PIDs = append(snap.PIDs, p.PID)
		rss += p.RSS
	}
	snap.MemoryMB = float64(rss) / (1024 * 1024)
	return snap, nil
}

func (t *PatternTarget) Describe() string {
	return "pattern:" + strings.Join(t.Patterns, ",")
}

// PIDTarget tracks an explicit root process and its descendants. It is
// established by the launcher so the watchdog does not depend on
// command-line matching.
type PIDTarget struct {
	Root int32
}

func (t *PIDTarget) Snapshot() (Snapshot, error) {
	root, err := process.NewProcess(t.Root)
	if err != nil {
		// Root is gone; an empty snapshot is a valid observation.
		return Snapshot{}, nil
	}
	procs := []*process.Process{root}
	if children, err := root.Children(); err == nil {
		procs = append(procs, children...)
	}
	var snap Snapshot
	var rss uint64
	for _, p := range procs {
		mi, err := p.MemoryInfo()
		if err != nil || mi == nil {
			continue
		}
		snap.PIDs = append(snap.PIDs, p.Pid)
		rss += mi.RSS
	}
	snap.MemoryMB = float64(rss) / (1024 * 1024)
	return snap, nil
}

func (t *PIDTarget) Describe() string { return fmt.Sprintf("pid:%d", t.Root) }

// systemProcesses enumerates all processes via gopsutil. Processes that
// disappear mid-enumeration or deny access are skipped.
func systemProcesses() ([]ProcInfo, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}
	out := make([]ProcInfo, 0, len(procs))
	for _, p := range procs {
		cmdline, err := p.Cmdline()
		if err != nil || cmdline == "" {
			continue
		}
		info := ProcInfo{PID: p.Pid, Cmdline: cmdline}
		if mi, err := p.MemoryInfo(); err == nil && mi != nil {
			info.RSS = mi.RSS
		}
		out = append(out, info)
	}
	return out, nil
}
