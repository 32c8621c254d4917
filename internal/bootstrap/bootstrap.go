// Package bootstrap assembles the ordered phase library that turns a
// fresh guest into a working agent sandbox. Each phase is idempotent in
// effect and guarded by a completion marker, so the whole sequence can
// be re-run after a partial failure.
package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentbox/agentbox/internal/config"
	"github.com/agentbox/agentbox/internal/phase"
)

// Exec runs one command line. Injectable so tests can record instead
// of executing.
type Exec func(ctx context.Context, line string) error

// Library builds the phase sequence from an immutable bootstrap config.
type Library struct {
	cfg  config.Bootstrap
	exec Exec
}

// NewLibrary returns a Library. A nil exec uses the real shell runner.
func NewLibrary(cfg config.Bootstrap, exec Exec) *Library {
	if exec == nil {
		exec = shellExec
	}
	return &Library{cfg: cfg, exec: exec}
}

// run executes the lines in order, stopping at the first failure.
func (l *Library) run(ctx context.Context, lines ...string) error {
	for _, line := range lines {
		if err := l.exec(ctx, line); err != nil {
			return fmt.Errorf("%q: %w", line, err)
		}
	}
	return nil
}

// Phases returns the ordered sequence for the configured guest. Phases
// whose toggle is off are omitted entirely rather than marked done, so
// enabling the toggle later runs them.
func (l *Library) Phases() []phase.Phase {
	cfg := l.cfg
	var phases []phase.Phase
	add := func(name, desc string, mode phase.FailureMode, run func(ctx context.Context) error) {
		phases = append(phases, phase.Phase{
			Name:        name,
			Description: desc,
			FailureMode: mode,
			Run:         run,
		})
	}

	add("01-system-packages", "base packages and apt update", phase.FailureModeFail, func(ctx context.Context) error {
		pkgs := append([]string{
			"curl", "git", "tmux", "htop", "jq", "build-essential", "ca-certificates",
		}, cfg.ExtraPackages...)
		return l.run(ctx,
			"apt-get update -y",
			"apt-get install -y "+strings.Join(pkgs, " "),
		)
	})

	if cfg.Timezone != "" {
		add("02-timezone", "set system timezone", phase.FailureModeIgnore, func(ctx context.Context) error {
			return l.run(ctx, "timedatectl set-timezone "+cfg.Timezone)
		})
	}

	if cfg.Username != "" {
		add("03-agent-user", "create the agent user", phase.FailureModeFail, func(ctx context.Context) error {
			u := cfg.Username
			return l.run(ctx,
				fmt.Sprintf("id -u %s || useradd -m -s /bin/bash %s", u, u),
				fmt.Sprintf("usermod -aG sudo %s", u),
				fmt.Sprintf("loginctl enable-linger %s", u),
			)
		})
	}

	if cfg.HardenSSH {
		add("04-ssh-harden", "disable password auth and root login", phase.FailureModeFail, func(ctx context.Context) error {
			return l.run(ctx,
				"sed -i 's/^#\\?PasswordAuthentication.*/PasswordAuthentication no/' /etc/ssh/sshd_config",
				"sed -i 's/^#\\?PermitRootLogin.*/PermitRootLogin no/' /etc/ssh/sshd_config",
				"systemctl reload ssh || systemctl reload sshd",
			)
		})
	}

	if cfg.Firewall {
		add("05-firewall", "ufw default deny with ssh allowed", phase.FailureModeIgnore, func(ctx context.Context) error {
			return l.run(ctx,
				"apt-get install -y ufw",
				"ufw default deny incoming",
				"ufw default allow outgoing",
				"ufw allow ssh",
				"ufw --force enable",
			)
		})
	}

	if cfg.InstallDocker {
		add("06-docker", "docker engine from the official repo", phase.FailureModeFail, func(ctx context.Context) error {
			lines := []string{
				"install -m 0755 -d /etc/apt/keyrings",
				"curl -fsSL https://download.docker.com/linux/ubuntu/gpg -o /etc/apt/keyrings/docker.asc",
				`sh -c 'echo "deb [signed-by=/etc/apt/keyrings/docker.asc] https://download.docker.com/linux/ubuntu $(. /etc/os-release && echo $VERSION_CODENAME) stable" > /etc/apt/sources.list.d/docker.list'`,
				"apt-get update -y",
				"apt-get install -y docker-ce docker-ce-cli containerd.io",
			}
			if cfg.Username != "" {
				lines = append(lines, fmt.Sprintf("usermod -aG docker %s", cfg.Username))
			}
			return l.run(ctx, lines...)
		})
	}

	if cfg.InstallNode {
		add("07-node", "node.js LTS via nodesource", phase.FailureModeFail, func(ctx context.Context) error {
			return l.run(ctx,
				"curl -fsSL https://deb.nodesource.com/setup_lts.x | bash -",
				"apt-get install -y nodejs",
			)
		})
	}

	if cfg.InstallGo {
		add("08-go", "go toolchain from go.dev", phase.FailureModeFail, func(ctx context.Context) error {
			return l.run(ctx,
				"curl -fsSL https://go.dev/dl/go1.24.0.linux-amd64.tar.gz -o /tmp/go.tar.gz",
				"rm -rf /usr/local/go",
				"tar -C /usr/local -xzf /tmp/go.tar.gz",
				`sh -c 'echo "export PATH=$PATH:/usr/local/go/bin" > /etc/profile.d/go.sh'`,
			)
		})
	}

	if cfg.SwapSizeGB > 0 {
		add("09-swap", "swapfile for memory pressure headroom", phase.FailureModeFail, func(ctx context.Context) error {
			size := fmt.Sprintf("%dG", cfg.SwapSizeGB)
			return l.run(ctx,
				"swapoff /swapfile || true",
				"fallocate -l "+size+" /swapfile",
				"chmod 600 /swapfile",
				"mkswap /swapfile",
				"swapon /swapfile",
				`sh -c 'grep -q "^/swapfile" /etc/fstab || echo "/swapfile none swap sw 0 0" >> /etc/fstab'`,
			)
		})
	}

	add("10-watchdog-service", "systemd units for the watchdog and crash monitor", phase.FailureModeIgnore, func(ctx context.Context) error {
		return l.run(ctx,
			installUnitLine("agentbox-watchdog", "agentbox watchdog"),
			installUnitLine("agentbox-crashmon", "agentbox crashmon"),
			"systemctl daemon-reload",
			"systemctl enable --now agentbox-watchdog agentbox-crashmon",
		)
	})

	return phases
}

// installUnitLine emits one shell line writing a restart-always unit.
// The watchdog never exits on its own; systemd owns its lifecycle.
func installUnitLine(unit, command string) string {
	body := fmt.Sprintf(
		"[Unit]\nDescription=%s\nAfter=network.target\n\n[Service]\nExecStart=/usr/local/bin/%s\nRestart=always\nRestartSec=5\n\n[Install]\nWantedBy=multi-user.target\n",
		unit, command)
	return fmt.Sprintf("sh -c 'cat > /etc/systemd/system/%s.service <<\"EOF\"\n%sEOF'", unit, body)
}
