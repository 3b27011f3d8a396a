package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// New returns a JSON logger writing to stdout at the given level
// (DEBUG, INFO, WARN, ERROR; anything else means INFO).
func New(level string) *slog.Logger {
	return NewWithWriter(os.Stdout, level)
}

func NewWithWriter(w io.Writer, level string) *slog.Logger {
	lvl := new(slog.LevelVar)
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl.Set(slog.LevelDebug)
	case "WARN":
		lvl.Set(slog.LevelWarn)
	case "ERROR":
		lvl.Set(slog.LevelError)
	default:
		lvl.Set(slog.LevelInfo)
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.MessageKey {
				return slog.Attr{Key: "message", Value: a.Value}
			}
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String("timestamp", t.Format(time.RFC3339))
				}
			}
			return a
		},
	})

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	return slog.New(handler).With("hostname", hostname)
}

// Discard is used by tests and by components built without a logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
