package securelog

import (
	"log/slog"
	"strings"
	"time"

	"github.com/khaleddesign/chantierpro-sub001/internal/platform/logger"
)

// Level is the severity tier of a secure log entry.
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarn     Level = "WARN"
	LevelError    Level = "ERROR"
	LevelSecurity Level = "SECURITY"
	LevelAudit    Level = "AUDIT"
)

// ParseLevel is case-insensitive; unknown names map to INFO.
func ParseLevel(s string) Level {
	switch Level(strings.ToUpper(strings.TrimSpace(s))) {
	case LevelWarn:
		return LevelWarn
	case LevelError:
		return LevelError
	case LevelSecurity:
		return LevelSecurity
	case LevelAudit:
		return LevelAudit
	default:
		return LevelInfo
	}
}

// Slog maps the tier onto the console logger's levels.
func (l Level) Slog() slog.Level {
	switch l {
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	case LevelSecurity:
		return logger.LevelSecurity
	case LevelAudit:
		return logger.LevelAudit
	default:
		return slog.LevelInfo
	}
}

// alerting levels are never only buffered.
func (l Level) alerting() bool {
	return l == LevelSecurity || l == LevelError
}

// Entry is one sanitized log record. Every string field has already been
// through the Sanitizer when an Entry leaves this package.
type Entry struct {
	Level     Level           `json:"level"`
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
	Context   *RequestContext `json:"context,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
	Error     string          `json:"error,omitempty"`
	Stack     string          `json:"stack,omitempty"`
}

func (e Entry) attrs() []any {
	args := make([]any, 0, 8)
	if e.UserID != "" {
		args = append(args, slog.String("user_id", e.UserID))
	}
	if e.Context != nil {
		args = append(args, slog.Group("request",
			slog.String("request_id", e.Context.RequestID),
			slog.String("ip", e.Context.IP),
			slog.String("method", e.Context.Method),
			slog.String("endpoint", e.Context.Endpoint),
			slog.String("user_agent", e.Context.UserAgent),
		))
	}
	if len(e.Metadata) > 0 {
		args = append(args, slog.Any("metadata", e.Metadata))
	}
	if e.Error != "" {
		args = append(args, slog.String("error", e.Error))
	}
	if e.Stack != "" {
		args = append(args, slog.String("stack", e.Stack))
	}
	return args
}
