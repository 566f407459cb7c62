package logger

import (
	"context"
	"io"
	"log/slog"
)

// ANSI sequences per level; reset terminates each colored span.
const (
	ansiReset  = "\033[0m"
	ansiCyan   = "\033[36m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiRed    = "\033[31m"
)

// colorHandler prefixes each record's message with its level rendered in
// an ANSI color. Used only when stderr is an interactive terminal.
type colorHandler struct {
	*slog.TextHandler
}

func newColorHandler(w io.Writer, opts *slog.HandlerOptions) *colorHandler {
	return &colorHandler{TextHandler: slog.NewTextHandler(w, opts)}
}

func (h *colorHandler) Handle(ctx context.Context, r slog.Record) error {
	var color string
	switch {
	case r.Level >= slog.LevelError:
		color = ansiRed
	case r.Level >= slog.LevelWarn:
		color = ansiYellow
	case r.Level >= slog.LevelInfo:
		color = ansiGreen
	default:
		color = ansiCyan
	}
	r.Message = color + r.Level.String() + ansiReset + "  " + r.Message
	return h.TextHandler.Handle(ctx, r)
}
