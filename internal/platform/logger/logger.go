package logger

import (
	"io"
	"log/slog"
	"os"
)

// Levels beyond the slog defaults. AUDIT sits between INFO and WARN so it
// survives an INFO threshold; SECURITY ranks above ERROR.
const (
	LevelAudit    = slog.Level(2)
	LevelSecurity = slog.Level(12)
)

// New returns the process console logger: JSON in production, human readable
// text in development.
func New(production bool) *slog.Logger {
	return NewWithWriter(os.Stdout, production)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, production bool) *slog.Logger {
	if production {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       slog.LevelInfo,
			ReplaceAttr: replaceLevel,
		}))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       slog.LevelDebug,
		ReplaceAttr: replaceLevel,
	}))
}

// Discard returns a logger that drops everything; used as a default in tests
// and optional dependencies.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// LevelName renders the custom levels by name.
func LevelName(l slog.Level) string {
	switch l {
	case LevelAudit:
		return "AUDIT"
	case LevelSecurity:
		return "SECURITY"
	default:
		return l.String()
	}
}

func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.LevelKey {
		if l, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(LevelName(l))
		}
	}
	return a
}
