package logger

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation constants for long-running loop logs.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes the log destination for a long-running loop
// (watchdog, crash monitor). If Path is empty and Dir is set, the file
// will be Dir/agentbox.<name>.log. Rotation parameters follow
// lumberjack semantics.
type Config struct {
	Dir        string `toml:"dir" mapstructure:"dir"`
	Path       string `toml:"path" mapstructure:"path"` // explicit path overrides Dir
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"` // Gzip rotated files
}

// Writer returns a rotating io.WriteCloser for the given loop name.
// Returns nil when neither Path nor Dir is configured (caller should
// fall back to stderr).
func (c Config) Writer(name string) io.WriteCloser {
	path := c.Path
	if path == "" && c.Dir != "" {
		path = filepath.Join(c.Dir, fmt.Sprintf("agentbox.%s.log", name))
	}
	if path == "" {
		return nil
	}
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

// New builds a slog.Logger writing to w. When color is true the handler
// prefixes each record with an ANSI-colored level tag; use it only for
// interactive (TTY) output, never for rotated files.
func New(w io.Writer, level slog.Level, color bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if color {
		return slog.New(newColorHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
