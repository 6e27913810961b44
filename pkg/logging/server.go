package logging

import (
	"io"
	"log/slog"
	"strings"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// NewServerLogger returns a logger for the long-running service. JSON output
// carries the service name on every record; text output uses CLIHandler.
func NewServerLogger(w io.Writer, level, format, service string) *slog.Logger {
	lev := ParseLogLevel(level)

	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatJSON:
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lev})
	default:
		h = NewCLIHandler(w, lev)
	}

	return slog.New(h).With("service", service)
}
