package main

import "time"

// GlobalFlags holds minimal global/persistent flags for CLI commands
type GlobalFlags struct {
	ConfigPath string
}

// BootstrapFlags holds flags for the bootstrap command
type BootstrapFlags struct {
	MarkerDir string // override the marker directory
	Only      string // run a single phase by name
	List      bool   // list phases and their completion state
	Reset     string // clear a phase marker and exit
}

// HealthFlags holds flags for the health command
type HealthFlags struct {
	Watch    bool
	Interval time.Duration
	Trend    bool // trend projection only, as JSON
}

// WatchdogFlags holds flags for the watchdog command
type WatchdogFlags struct {
	Daemonize bool
	PidFile   string
	LogFile   string
}

// CrashmonFlags holds flags for the crashmon command
type CrashmonFlags struct {
	Daemonize bool
	PidFile   string
	LogFile   string
}

// ServeFlags holds flags for the serve command
type ServeFlags struct {
	Listen   string
	BasePath string
}
