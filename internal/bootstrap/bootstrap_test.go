package bootstrap

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/agentbox/agentbox/internal/config"
	"github.com/agentbox/agentbox/internal/phase"
)

type recorder struct {
	lines []string
	fail  string // any line containing this substring fails
}

func (r *recorder) exec(_ context.Context, line string) error {
	r.lines = append(r.lines, line)
	if r.fail != "" && strings.Contains(line, r.fail) {
		return errors.New("boom")
	}
	return nil
}

func phaseNames(ps []phase.Phase) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name
	}
	return out
}

func TestPhasesFullToggles(t *testing.T) {
	cfg := config.Bootstrap{
		Username:      "agent",
		Timezone:      "UTC",
		InstallDocker: true,
		InstallNode:   true,
		InstallGo:     true,
		HardenSSH:     true,
		Firewall:      true,
		SwapSizeGB:    8,
	}
	lib := NewLibrary(cfg, (&recorder{}).exec)
	got := phaseNames(lib.Phases())
	want := []string{
		"01-system-packages", "02-timezone", "03-agent-user", "04-ssh-harden",
		"05-firewall", "06-docker", "07-node", "08-go", "09-swap",
		"10-watchdog-service",
	}
	if len(got) != len(want) {
		t.Fatalf("phases = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("phase[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestPhasesDisabledTogglesOmitted(t *testing.T) {
	lib := NewLibrary(config.Bootstrap{}, (&recorder{}).exec)
	got := phaseNames(lib.Phases())
	want := []string{"01-system-packages", "10-watchdog-service"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("phases = %v, want %v", got, want)
	}
}

func TestPhasesValidate(t *testing.T) {
	cfg := config.Bootstrap{
		Username: "agent", Timezone: "UTC",
		InstallDocker: true, InstallNode: true, InstallGo: true,
		HardenSSH: true, Firewall: true, SwapSizeGB: 4,
	}
	for _, p := range NewLibrary(cfg, (&recorder{}).exec).Phases() {
		if err := p.Validate(); err != nil {
			t.Fatalf("phase %s invalid: %v", p.Name, err)
		}
	}
}

func TestSystemPackagesIncludesExtras(t *testing.T) {
	rec := &recorder{}
	cfg := config.Bootstrap{ExtraPackages: []string{"ripgrep", "fd-find"}}
	ps := NewLibrary(cfg, rec.exec).Phases()
	if err := ps[0].Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	joined := strings.Join(rec.lines, "\n")
	for _, want := range []string{"apt-get update", "ripgrep", "fd-find", "tmux"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("commands missing %q:\n%s", want, joined)
		}
	}
}

func TestPhaseStopsAtFirstFailedCommand(t *testing.T) {
	rec := &recorder{fail: "apt-get install"}
	ps := NewLibrary(config.Bootstrap{}, rec.exec).Phases()
	err := ps[0].Run(context.Background())
	if err == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(err.Error(), "apt-get install") {
		t.Fatalf("error should carry the failing line, got %v", err)
	}
	// update ran, install failed, nothing after.
	if len(rec.lines) != 2 {
		t.Fatalf("executed %d lines, want 2: %v", len(rec.lines), rec.lines)
	}
}

func TestDockerPhaseAddsUserToGroup(t *testing.T) {
	rec := &recorder{}
	cfg := config.Bootstrap{Username: "agent", InstallDocker: true}
	var docker *phase.Phase
	for _, p := range NewLibrary(cfg, rec.exec).Phases() {
		if p.Name == "06-docker" {
			pp := p
			docker = &pp
		}
	}
	if docker == nil {
		t.Fatal("docker phase missing")
	}
	if err := docker.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	joined := strings.Join(rec.lines, "\n")
	if !strings.Contains(joined, "usermod -aG docker agent") {
		t.Fatalf("docker phase should add the agent user to the docker group:\n%s", joined)
	}
}

func TestSwapPhaseUsesConfiguredSize(t *testing.T) {
	rec := &recorder{}
	cfg := config.Bootstrap{SwapSizeGB: 16}
	for _, p := range NewLibrary(cfg, rec.exec).Phases() {
		if p.Name == "09-swap" {
			if err := p.Run(context.Background()); err != nil {
				t.Fatalf("run: %v", err)
			}
		}
	}
	joined := strings.Join(rec.lines, "\n")
	for _, want := range []string{"fallocate -l 16G /swapfile", "mkswap /swapfile", "swapon /swapfile", "/etc/fstab"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("swap commands missing %q:\n%s", want, joined)
		}
	}
}

func TestFailureModes(t *testing.T) {
	cfg := config.Bootstrap{Username: "agent", Timezone: "UTC", Firewall: true}
	modes := map[string]phase.FailureMode{}
	for _, p := range NewLibrary(cfg, (&recorder{}).exec).Phases() {
		modes[p.Name] = p.FailureMode
	}
	if modes["01-system-packages"] != phase.FailureModeFail {
		t.Fatal("system packages must be required")
	}
	if modes["02-timezone"] != phase.FailureModeIgnore {
		t.Fatal("timezone must be optional")
	}
	if modes["05-firewall"] != phase.FailureModeIgnore {
		t.Fatal("firewall must be optional")
	}
	if modes["10-watchdog-service"] != phase.FailureModeIgnore {
		t.Fatal("watchdog service install must be optional")
	}
}

func TestWatchdogUnitContents(t *testing.T) {
	line := installUnitLine("agentbox-watchdog", "agentbox watchdog")
	for _, want := range []string{"Restart=always", "ExecStart=/usr/local/bin/agentbox watchdog", "/etc/systemd/system/agentbox-watchdog.service"} {
		if !strings.Contains(line, want) {
			t.Fatalf("unit line missing %q:\n%s", want, line)
		}
	}
}
