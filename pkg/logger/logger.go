package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup builds the process logger. format is "text" or "json"; anything else
// falls back to text.
func Setup(level slog.Level, format string) *slog.Logger {
	return New(os.Stdout, level, format)
}

func New(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
	}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
