package launcher

import (
	"runtime"
	"strings"
	"testing"
)

func TestParseLimitValid(t *testing.T) {
	cases := []struct {
		in     string
		value  int
		suffix string
	}{
		{"12G", 12, "G"},
		{"512M", 512, "M"},
		{"1048576K", 1048576, "K"},
	}
	for _, c := range cases {
		l, err := ParseLimit(c.in)
		if err != nil {
			t.Fatalf("ParseLimit(%q): %v", c.in, err)
		}
		if l.Value != c.value || l.Suffix != c.suffix {
			t.Fatalf("ParseLimit(%q) = %+v", c.in, l)
		}
	}
}

func TestParseLimitInvalid(t *testing.T) {
	bad := []string{"", "12", "12x", "G12", "12g", "12GB", "-4G", "1.5G", " 12G", "12G "}
	for _, s := range bad {
		if _, err := ParseLimit(s); err == nil {
			t.Fatalf("ParseLimit(%q) should fail", s)
		}
	}
}

func TestSwapCeiling(t *testing.T) {
	l, err := ParseLimit("12G")
	if err != nil {
		t.Fatalf("ParseLimit: %v", err)
	}
	swap := l.SwapCeiling(DefaultSwapHeadroom)
	if swap.String() != "16G" {
		t.Fatalf("swap ceiling = %s, want 16G", swap.String())
	}
	// Headroom unit follows the limit's own suffix.
	m, _ := ParseLimit("512M")
	if got := m.SwapCeiling(4).String(); got != "516M" {
		t.Fatalf("swap ceiling = %s, want 516M", got)
	}
}

func TestCommandCarriesCgroupProperties(t *testing.T) {
	l := &Launcher{SystemdRun: "/usr/bin/systemd-run"}
	limit, _ := ParseLimit("12G")
	cmd := l.Command(limit, []string{"sleep", "1"})
	joined := strings.Join(cmd.Args, " ")
	for _, want := range []string{
		"--user", "--scope",
		"MemoryAccounting=yes",
		"MemoryMax=12G",
		"MemorySwapMax=16G",
		"-- sleep 1",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("command %q missing %q", joined, want)
		}
	}
}

func TestRunRejectsBadLimitBeforeSpawn(t *testing.T) {
	l := &Launcher{SystemdRun: "/nonexistent/systemd-run"}
	code, err := l.Run("12x", []string{"true"}, nil)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if code != UsageExitCode {
		t.Fatalf("exit code %d, want %d", code, UsageExitCode)
	}
	// The binary path is bogus; reaching it would have produced a
	// different error text than limit validation.
	if !strings.Contains(err.Error(), "invalid memory limit") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunRejectsEmptyCommand(t *testing.T) {
	l := &Launcher{}
	code, err := l.Run("1G", nil, nil)
	if err == nil || code != UsageExitCode {
		t.Fatalf("expected usage error for empty command, got code=%d err=%v", code, err)
	}
}

func TestRunMirrorsExitCode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	// Use /bin/sh as the "systemd-run" so the wrapped exit code flows
	// through without a real scope: sh -c 'exit 3' ignores the scope
	// flags via the wrapper script below.
	l := &Launcher{SystemdRun: "testdata/fake-systemd-run.sh"}
	limit := "1G"

	var startedPID int
	code, err := l.Run(limit, []string{"exit-code", "3"}, func(pid int) { startedPID = pid })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != 3 {
		t.Fatalf("exit code %d, want 3", code)
	}
	if startedPID <= 0 {
		t.Fatalf("onStart not called with a PID")
	}

	code, err = l.Run(limit, []string{"exit-code", "0"}, nil)
	if err != nil || code != 0 {
		t.Fatalf("zero exit: code=%d err=%v", code, err)
	}
}
