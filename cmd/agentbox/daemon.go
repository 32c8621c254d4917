package main

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// daemonize re-execs the current command in the background, detached
// from the terminal, and exits the parent.
func daemonize(pidFile string, logFile string) error {
	// Check if already running as daemon (child process)
	if os.Getppid() == 1 {
		return nil
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// Rebuild the argument list without the daemonize flags so the
	// child runs in the foreground.
	var newArgs []string
	skipNext := false
	for _, arg := range os.Args[1:] {
		if skipNext {
			skipNext = false
			continue
		}
		switch arg {
		case "--daemonize":
			continue
		case "--pidfile", "--logfile":
			skipNext = true
			continue
		}
		newArgs = append(newArgs, arg)
	}

	// The child keeps the pidfile/logfile flags so it can clean up on
	// exit; without --daemonize it stays in the foreground.
	if pidFile != "" {
		newArgs = append(newArgs, "--pidfile", pidFile)
	}
	if logFile != "" {
		newArgs = append(newArgs, "--logfile", logFile)
	}

	// #nosec 204
	cmd := exec.Command(executable, newArgs...)
	configureDaemonAttrs(cmd)
	cmd.Stdin = nil

	if logFile != "" {
		// #nosec 304
		logF, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		cmd.Stdout = logF
		cmd.Stderr = logF
	} else {
		cmd.Stdout = nil
		cmd.Stderr = nil
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon process: %w", err)
	}

	if pidFile != "" {
		if err := writePidFile(pidFile, cmd.Process.Pid); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
	}

	fmt.Printf("Daemon started with PID %d\n", cmd.Process.Pid)

	// Parent process exits
	os.Exit(0)
	return nil
}

// writePidFile writes the daemon PID to a file
func writePidFile(pidFile string, pid int) error {
	// #nosec 302
	f, err := os.OpenFile(pidFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = f.WriteString(strconv.Itoa(pid))
	return err
}

// removePidFile removes the PID file
func removePidFile(pidFile string) error {
	if pidFile == "" {
		return nil
	}
	return os.Remove(pidFile)
}
