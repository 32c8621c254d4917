package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and wires all subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	bootstrapFlags := &BootstrapFlags{}
	healthFlags := &HealthFlags{}
	watchdogFlags := &WatchdogFlags{}
	crashmonFlags := &CrashmonFlags{}
	serveFlags := &ServeFlags{}

	agentboxCommand := command{globals: globalFlags}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createBootstrapCommand(agentboxCommand, bootstrapFlags),
		createHealthCommand(agentboxCommand, healthFlags),
		createLaunchCommand(agentboxCommand),
		createSessionCommand(agentboxCommand),
		createWatchdogCommand(agentboxCommand, watchdogFlags),
		createCrashmonCommand(agentboxCommand, crashmonFlags),
		createServeCommand(agentboxCommand, serveFlags),
		createVersionCommand(),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "agentbox",
		Short: "Guest-side bootstrap and resilience toolkit for agent sandboxes",
		Long: `Agentbox prepares a sandbox guest for long-running AI-agent workloads
and keeps it alive under memory pressure: idempotent phased bootstrap,
a memory watchdog, resource-limited launching, crash forensics and
health reporting with trend projection.

Examples:
  agentbox bootstrap                # run all pending phases
  agentbox health --watch           # live vitals
  agentbox launch 12G -- node agent.js
  agentbox watchdog --daemonize`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

// createBootstrapCommand creates the bootstrap subcommand
func createBootstrapCommand(agentboxCommand command, flags *BootstrapFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Run the idempotent phase sequence",
		Long: `Run the bootstrap phases in order. Completed phases are skipped via
marker files; a failed required phase aborts the sequence and leaves no
marker, so a re-run resumes at the failed phase.

Examples:
  agentbox bootstrap
  agentbox bootstrap --list
  agentbox bootstrap --only 06-docker
  agentbox bootstrap --reset 06-docker   # force a phase to re-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return agentboxCommand.Bootstrap(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.MarkerDir, "marker-dir", "", "override the marker directory")
	cmd.Flags().StringVar(&flags.Only, "only", "", "run a single phase by name")
	cmd.Flags().BoolVar(&flags.List, "list", false, "list phases and their completion state")
	cmd.Flags().StringVar(&flags.Reset, "reset", "", "clear a phase marker and exit")
	return cmd
}

// createHealthCommand creates the health subcommand
func createHealthCommand(agentboxCommand command, flags *HealthFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Report system vitals and memory trend",
		Long: `Print a vitals report (memory, swap, disk, load, target memory) with a
trend projection. Every invocation also records one sample into the
bounded metrics history.

Examples:
  agentbox health
  agentbox health --watch --interval 30s
  agentbox health --trend`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return agentboxCommand.Health(*flags)
		},
	}
	cmd.Flags().BoolVar(&flags.Watch, "watch", false, "report continuously")
	cmd.Flags().DurationVar(&flags.Interval, "interval", 30*time.Second, "watch interval")
	cmd.Flags().BoolVar(&flags.Trend, "trend", false, "print the trend projection as JSON")
	return cmd
}

// createLaunchCommand creates the launch subcommand
func createLaunchCommand(agentboxCommand command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "launch LIMIT -- COMMAND [ARGS...]",
		Short: "Run a command under a hard memory ceiling",
		Long: `Launch a command inside a transient systemd scope with MemoryMax set to
LIMIT (e.g. 12G) and MemorySwapMax to LIMIT plus headroom. The exit
code mirrors the wrapped command; malformed limits exit 1 before
anything is spawned.

Examples:
  agentbox launch 12G -- node --max-old-space-size=8192 agent.js
  agentbox launch 512M -- ./worker`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := agentboxCommand.Launch(args[0], args[1:])
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
			if code != 0 {
				os.Exit(code)
			}
			return nil
		},
	}
	// Keep cobra from eating the wrapped command's flags after "--".
	cmd.Flags().SetInterspersed(false)
	return cmd
}

// createSessionCommand creates the session subcommand
func createSessionCommand(agentboxCommand command) *cobra.Command {
	return &cobra.Command{
		Use:   "session [NAME] [WORKDIR]",
		Short: "Attach to a named tmux session, creating it if needed",
		Long: `Attach to the named tmux session, creating it rooted at WORKDIR when it
does not exist. A metadata record is written on creation only.

Examples:
  agentbox session
  agentbox session builds ~/src`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return agentboxCommand.Session(args)
		},
	}
}

// createWatchdogCommand creates the watchdog subcommand
func createWatchdogCommand(agentboxCommand command, flags *WatchdogFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watchdog",
		Short: "Run the memory watchdog loop",
		Long: `Sample target process memory on an interval. Above the warn threshold a
warning is logged; above the kill threshold the target is sent SIGTERM,
re-measured after a grace period, and SIGKILLed if still over. The loop
runs until signalled; pair it with a Restart=always systemd unit.

Examples:
  agentbox watchdog
  agentbox watchdog --daemonize --pidfile /run/agentbox-watchdog.pid`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return agentboxCommand.Watchdog(*flags)
		},
	}
	cmd.Flags().BoolVar(&flags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&flags.PidFile, "pidfile", "", "write daemon PID to file")
	cmd.Flags().StringVar(&flags.LogFile, "logfile", "", "redirect daemon logs to file")
	return cmd
}

// createCrashmonCommand creates the crashmon subcommand
func createCrashmonCommand(agentboxCommand command, flags *CrashmonFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crashmon",
		Short: "Run the crash monitor loop",
		Long: `Watch the kernel log tail for OOM-kill events and record each one to
the crash log and any configured history sink, together with a memory
snapshot and live session count.

Examples:
  agentbox crashmon
  agentbox crashmon --daemonize --logfile /var/log/agentbox-crashmon.log`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return agentboxCommand.Crashmon(*flags)
		},
	}
	cmd.Flags().BoolVar(&flags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&flags.PidFile, "pidfile", "", "write daemon PID to file")
	cmd.Flags().StringVar(&flags.LogFile, "logfile", "", "redirect daemon logs to file")
	return cmd
}

// createServeCommand creates the serve subcommand
func createServeCommand(agentboxCommand command, flags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only status API",
		Long: `Expose sandbox status over HTTP: health, trend, completed phases,
crash-log tail, sessions and prometheus metrics.

Examples:
  agentbox serve
  agentbox serve --listen :8420 --base-path /api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return agentboxCommand.Serve(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.Listen, "listen", "", "listen address (default from config)")
	cmd.Flags().StringVar(&flags.BasePath, "base-path", "", "API base path (default from config)")
	return cmd
}

// createVersionCommand creates the version subcommand
func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the agentbox version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}
