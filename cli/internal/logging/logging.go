// Package logging configures the CLI's default slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps LOG_LEVEL values to a slog level. Anything unknown
// keeps the production default of errors only.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Init installs a text logger on stderr, or on the file named by LOG_FILE
// so logs do not tear through the live view. The returned function
// closes that file.
func Init() func() {
	var out io.Writer = os.Stderr
	closeFn := func() {}

	if path := os.Getenv("LOG_FILE"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			out = f
			closeFn = func() { f.Close() }
		}
	}

	logger := slog.New(
		slog.NewTextHandler(out, &slog.HandlerOptions{
			Level: ParseLevel(os.Getenv("LOG_LEVEL")),
		}),
	)
	slog.SetDefault(logger)
	return closeFn
}
