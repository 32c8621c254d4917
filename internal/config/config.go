package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agentbox/agentbox/internal/logger"
	"github.com/spf13/viper"
)

// Config is the top-level TOML structure. It is built once at startup
// and treated as immutable afterwards: phases, the watchdog and the
// reporter all read from the same struct and never write to it.
type Config struct {
	// StateDir holds markers, metrics, crash log and session records.
	// Defaults to ~/.agentbox.
	StateDir string `toml:"state_dir" mapstructure:"state_dir"`

	Bootstrap Bootstrap     `toml:"bootstrap" mapstructure:"bootstrap"`
	Watchdog  Watchdog      `toml:"watchdog" mapstructure:"watchdog"`
	Launcher  Launcher      `toml:"launcher" mapstructure:"launcher"`
	Session   Session       `toml:"session" mapstructure:"session"`
	Health    Health        `toml:"health" mapstructure:"health"`
	History   History       `toml:"history" mapstructure:"history"`
	Server    Server        `toml:"server" mapstructure:"server"`
	Log       logger.Config `toml:"log" mapstructure:"log"`
}

// Bootstrap carries the feature toggles and sizes the phase library
// reads. Each phase receives this struct by value; nothing mutates it
// between phases.
type Bootstrap struct {
	Username      string   `toml:"username" mapstructure:"username"`
	Timezone      string   `toml:"timezone" mapstructure:"timezone"`
	InstallDocker bool     `toml:"install_docker" mapstructure:"install_docker"`
	InstallNode   bool     `toml:"install_node" mapstructure:"install_node"`
	InstallGo     bool     `toml:"install_go" mapstructure:"install_go"`
	HardenSSH     bool     `toml:"harden_ssh" mapstructure:"harden_ssh"`
	Firewall      bool     `toml:"firewall" mapstructure:"firewall"`
	SwapSizeGB    int      `toml:"swap_size_gb" mapstructure:"swap_size_gb"`
	ExtraPackages []string `toml:"extra_packages" mapstructure:"extra_packages"`
}

// Watchdog configures the memory watchdog loop.
type Watchdog struct {
	// Patterns are matched as substrings against process command lines
	// when no PID handle is available.
	Patterns      []string      `toml:"patterns" mapstructure:"patterns"`
	WarnMB        float64       `toml:"warn_mb" mapstructure:"warn_mb"`
	KillMB        float64       `toml:"kill_mb" mapstructure:"kill_mb"`
	CheckInterval time.Duration `toml:"check_interval" mapstructure:"check_interval"`
	GracePeriod   time.Duration `toml:"grace_period" mapstructure:"grace_period"`
}

// Launcher configures the resource-limited launcher.
type Launcher struct {
	// SwapHeadroom is added to the memory limit (same unit suffix) to
	// derive the memory+swap ceiling. Default 4.
	SwapHeadroom int `toml:"swap_headroom" mapstructure:"swap_headroom"`
	// SystemdRun overrides the systemd-run binary path (tests).
	SystemdRun string `toml:"systemd_run" mapstructure:"systemd_run"`
}

// Session configures the terminal session wrapper.
type Session struct {
	DefaultName    string `toml:"default_name" mapstructure:"default_name"`
	DefaultWorkDir string `toml:"default_workdir" mapstructure:"default_workdir"`
}

// Health configures sampling and trend projection.
type Health struct {
	SampleCap         int     `toml:"sample_cap" mapstructure:"sample_cap"`
	WindowSamples     int     `toml:"window_samples" mapstructure:"window_samples"`
	MinSamples        int     `toml:"min_samples" mapstructure:"min_samples"`
	GrowthThresholdMB float64 `toml:"growth_threshold_mb" mapstructure:"growth_threshold_mb"`
	StableBandMB      float64 `toml:"stable_band_mb" mapstructure:"stable_band_mb"`
	PredictCapMinutes int     `toml:"predict_cap_minutes" mapstructure:"predict_cap_minutes"`
}

// History configures the crash-event sink.
// DSN formats follow the sink factory: sqlite:///path, postgres://...,
// clickhouse://host:port?table=....
type History struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	DSN     string `toml:"dsn" mapstructure:"dsn"`
}

// Server configures the read-only HTTP status API.
type Server struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		StateDir: filepath.Join(home, ".agentbox"),
		Bootstrap: Bootstrap{
			Username:  "agent",
			HardenSSH: true,
			Firewall:  true,
		},
		Watchdog: Watchdog{
			Patterns:      []string{"claude", "node --max-old-space-size"},
			WarnMB:        8000,
			KillMB:        13000,
			CheckInterval: 30 * time.Second,
			GracePeriod:   5 * time.Second,
		},
		Launcher: Launcher{SwapHeadroom: 4},
		Session: Session{
			DefaultName:    "agent",
			DefaultWorkDir: filepath.Join(home, "workspace"),
		},
		Health: Health{
			SampleCap:         2880, // 24h at the 30s interval
			WindowSamples:     60,   // ~30 minutes back
			MinSamples:        10,
			GrowthThresholdMB: 2000,
			StableBandMB:      500,
			PredictCapMinutes: 120,
		},
		Server: Server{Listen: ":8420", BasePath: "/api"},
	}
}

// LoadConfig reads a TOML config file and merges it over defaults.
// An empty path returns defaults. The result is validated.
func LoadConfig(path string) (*Config, error) {
	c := Default()
	if path != "" {
		v := viper.New()
		v.SetConfigFile(filepath.Clean(path))
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := v.Unmarshal(c); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate rejects configurations the loops cannot run with. In
// particular kill_mb must exceed warn_mb; the original scripts assumed
// this ordering without checking it.
func (c *Config) Validate() error {
	if c.StateDir == "" {
		return fmt.Errorf("state_dir must not be empty")
	}
	if c.Watchdog.KillMB <= c.Watchdog.WarnMB {
		return fmt.Errorf("watchdog: kill_mb (%.0f) must be greater than warn_mb (%.0f)",
			c.Watchdog.KillMB, c.Watchdog.WarnMB)
	}
	if c.Watchdog.CheckInterval <= 0 {
		return fmt.Errorf("watchdog: check_interval must be positive")
	}
	if c.Watchdog.GracePeriod <= 0 {
		return fmt.Errorf("watchdog: grace_period must be positive")
	}
	if c.Launcher.SwapHeadroom < 0 {
		return fmt.Errorf("launcher: swap_headroom must not be negative")
	}
	if c.Health.SampleCap <= 0 {
		return fmt.Errorf("health: sample_cap must be positive")
	}
	if c.Health.WindowSamples <= 0 || c.Health.MinSamples <= 0 {
		return fmt.Errorf("health: window_samples and min_samples must be positive")
	}
	return nil
}

// MarkerDir returns the marker directory under StateDir.
func (c *Config) MarkerDir() string { return filepath.Join(c.StateDir, "markers") }

// MetricsFile returns the bounded metrics CSV path under StateDir.
func (c *Config) MetricsFile() string { return filepath.Join(c.StateDir, "metrics.csv") }

// CrashLog returns the crash log path under StateDir.
func (c *Config) CrashLog() string { return filepath.Join(c.StateDir, "crash.log") }

// SessionDir returns the session metadata directory under StateDir.
func (c *Config) SessionDir() string { return filepath.Join(c.StateDir, "sessions") }
