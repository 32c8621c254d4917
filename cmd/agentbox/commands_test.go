package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agentbox/agentbox/internal/launcher"
)

func writeTestConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	state := filepath.Join(dir, "state")
	cfgPath := filepath.Join(dir, "agentbox.toml")
	body := "state_dir = \"" + state + "\"\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath, state
}

func TestLaunchBadLimitIsUsageError(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	c := command{globals: &GlobalFlags{ConfigPath: cfgPath}}
	code, err := c.Launch("12GB", []string{"/bin/true"})
	if err == nil {
		t.Fatal("expected error for malformed limit")
	}
	if code != launcher.UsageExitCode {
		t.Fatalf("code = %d, want %d", code, launcher.UsageExitCode)
	}
}

func TestLaunchNoCommandIsUsageError(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	c := command{globals: &GlobalFlags{ConfigPath: cfgPath}}
	code, err := c.Launch("1G", nil)
	if err == nil || code != launcher.UsageExitCode {
		t.Fatalf("code = %d err = %v, want usage error", code, err)
	}
}

func TestHealthErrorsAreInformational(t *testing.T) {
	cfgPath, state := writeTestConfig(t)
	// A directory where the metrics CSV should be makes every store
	// operation fail, so both report and trend hit the error path.
	if err := os.MkdirAll(filepath.Join(state, "metrics.csv"), 0o700); err != nil {
		t.Fatalf("mkdir metrics.csv: %v", err)
	}
	c := command{globals: &GlobalFlags{ConfigPath: cfgPath}}
	if err := c.Health(HealthFlags{Trend: true}); err != nil {
		t.Fatalf("health --trend must keep exit code 0, got %v", err)
	}
	if err := c.Health(HealthFlags{}); err != nil {
		t.Fatalf("health must keep exit code 0, got %v", err)
	}
}

func TestBootstrapListUsesMarkerDirOverride(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	markerDir := filepath.Join(t.TempDir(), "markers")
	c := command{globals: &GlobalFlags{ConfigPath: cfgPath}}
	if err := c.Bootstrap(BootstrapFlags{MarkerDir: markerDir, List: true}); err != nil {
		t.Fatalf("Bootstrap --list: %v", err)
	}
	if _, err := os.Stat(markerDir); err != nil {
		t.Fatalf("marker dir not created: %v", err)
	}
}

func TestBootstrapUnknownPhase(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	c := command{globals: &GlobalFlags{ConfigPath: cfgPath}}
	err := c.Bootstrap(BootstrapFlags{MarkerDir: t.TempDir(), Only: "99-no-such-phase"})
	if err == nil {
		t.Fatal("expected error for unknown phase")
	}
}

func TestBootstrapResetClearsMarker(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	markerDir := filepath.Join(t.TempDir(), "markers")
	c := command{globals: &GlobalFlags{ConfigPath: cfgPath}}
	// Reset of a never-recorded marker is a no-op.
	if err := c.Bootstrap(BootstrapFlags{MarkerDir: markerDir, Reset: "01-system-packages"}); err != nil {
		t.Fatalf("Bootstrap --reset: %v", err)
	}
}

func TestLoadConfigBadPath(t *testing.T) {
	c := command{globals: &GlobalFlags{ConfigPath: "/nonexistent/agentbox.toml"}}
	if _, err := c.loadConfig(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
