package logger

import (
	"context"
	"io"
	"log/slog"
)

const ansiReset = "\033[0m"

// levelColors holds the ANSI sequence used for each level tag in
// interactive output.
var levelColors = map[slog.Level]string{
	slog.LevelDebug: "\033[36m", // cyan
	slog.LevelInfo:  "\033[32m", // green
	slog.LevelWarn:  "\033[33m", // yellow
	slog.LevelError: "\033[31m", // red
}

// colorHandler prefixes each record's message with a colored level tag
// and delegates everything else to slog.TextHandler. TTY output only;
// rotated files get the plain text handler.
type colorHandler struct {
	*slog.TextHandler
}

func newColorHandler(w io.Writer, opts *slog.HandlerOptions) *colorHandler {
	return &colorHandler{TextHandler: slog.NewTextHandler(w, opts)}
}

func (h *colorHandler) Handle(ctx context.Context, r slog.Record) error {
	color, ok := levelColors[r.Level]
	if !ok {
		color = ansiReset
	}
	r.Message = color + r.Level.String() + ansiReset + "  " + r.Message
	return h.TextHandler.Handle(ctx, r)
}
