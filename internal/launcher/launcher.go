// Package launcher starts the target process inside a transient systemd
// scope with a hard memory ceiling and a memory+swap ceiling. The kernel
// cgroup mechanism enforces the limits; the launcher only builds the
// scope and mirrors the wrapped process's exit code.
package launcher

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
)

// UsageExitCode is returned for malformed limit syntax. It is reported
// before any process is spawned, so it never collides with a wrapped
// process's own exit status reaching the caller through Run.
const UsageExitCode = 1

// DefaultSwapHeadroom is added to the memory limit, in the limit's own
// unit, to derive the memory+swap ceiling.
const DefaultSwapHeadroom = 4

// limitRe is the strict limit syntax: integer plus one of K, M, G.
var limitRe = regexp.MustCompile(`^([0-9]+)([KMG])$`)

// Limit is a parsed memory limit such as 12G.
type Limit struct {
	Value  int
	Suffix string
}

// ParseLimit validates and parses a memory limit. Invalid input is a
// usage error, never clamped or guessed at.
func ParseLimit(s string) (Limit, error) {
	m := limitRe.FindStringSubmatch(s)
	if m == nil {
		return Limit{}, fmt.Errorf("invalid memory limit %q: expected <integer><K|M|G>, e.g. 12G", s)
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return Limit{}, fmt.Errorf("invalid memory limit %q: %w", s, err)
	}
	if v <= 0 {
		return Limit{}, fmt.Errorf("invalid memory limit %q: must be positive", s)
	}
	return Limit{Value: v, Suffix: m[2]}, nil
}

// SwapCeiling derives the combined memory+swap ceiling by adding
// headroom units of the same suffix.
func (l Limit) SwapCeiling(headroom int) Limit {
	return Limit{Value: l.Value + headroom, Suffix: l.Suffix}
}

func (l Limit) String() string { return strconv.Itoa(l.Value) + l.Suffix }

// Launcher builds and runs resource-limited scopes.
type Launcher struct {
	// SystemdRun overrides the systemd-run binary (tests).
	SystemdRun string
	// SwapHeadroom defaults to DefaultSwapHeadroom when zero.
	SwapHeadroom int
}

// Command builds the systemd-run invocation for argv under the given
// limit. Accounting is enabled so the scope shows up in systemd-cgtop
// and the memory gauges stay observable.
func (l *Launcher) Command(limit Limit, argv []string) *exec.Cmd {
	bin := l.SystemdRun
	if bin == "" {
		bin = "systemd-run"
	}
	headroom := l.SwapHeadroom
	if headroom == 0 {
		headroom = DefaultSwapHeadroom
	}
	args := []string{
		"--user", "--scope",
		"-p", "MemoryAccounting=yes",
		"-p", "MemoryMax=" + limit.String(),
		"-p", "MemorySwapMax=" + limit.SwapCeiling(headroom).String(),
		"--",
	}
	args = append(args, argv...)
	// #nosec G204 argv is the operator's own command line
	cmd := exec.Command(bin, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

// Run parses rawLimit, launches argv inside the scope and returns the
// exit code to report: UsageExitCode for bad syntax (before any spawn),
// otherwise the wrapped process's exit code. The root PID of the scope
// is passed to onStart when provided, so a watchdog can track the group
// by PID instead of pattern matching.
func (l *Launcher) Run(rawLimit string, argv []string, onStart func(pid int)) (int, error) {
	limit, err := ParseLimit(rawLimit)
	if err != nil {
		return UsageExitCode, err
	}
	if len(argv) == 0 {
		return UsageExitCode, fmt.Errorf("no command given to launch")
	}
	cmd := l.Command(limit, argv)
	if err := cmd.Start(); err != nil {
		return UsageExitCode, fmt.Errorf("start %s: %w", argv[0], err)
	}
	if onStart != nil {
		onStart(cmd.Process.Pid)
	}
	err = cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		// Transparent wrapper: the scope's exit code is the child's.
		return ee.ExitCode(), nil
	}
	return UsageExitCode, fmt.Errorf("wait for %s: %w", argv[0], err)
}
