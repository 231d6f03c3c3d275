package monitor

import (
	"fmt"
	"strings"
	"time"
)

// EventType classifies a security event.
type EventType string

const (
	EventFailedLogin         EventType = "FAILED_LOGIN"
	EventUnauthorizedAccess  EventType = "UNAUTHORIZED_ACCESS"
	EventSensitiveDataAccess EventType = "SENSITIVE_DATA_ACCESS"
	EventAdminAction         EventType = "ADMIN_ACTION"
	EventSuspiciousUpload    EventType = "SUSPICIOUS_FILE_UPLOAD"
	EventDatabaseErrorSpike  EventType = "DATABASE_ERROR_SPIKE"
	EventRateLimitExceeded   EventType = "RATE_LIMIT_EXCEEDED"
	EventSuspiciousIP        EventType = "SUSPICIOUS_IP"
	EventUnusualUserBehavior EventType = "UNUSUAL_USER_BEHAVIOR"
)

// Severity is ordered: Low < Medium < High < Critical.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	}
	return 0, fmt.Errorf("unknown severity %q", s)
}

// Urgent severities go through the alert handler synchronously.
func (s Severity) Urgent() bool {
	return s >= SeverityHigh
}

// Event is immutable once recorded. Metadata has been sanitized.
type Event struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	UserID      string         `json:"userId,omitempty"`
	IP          string         `json:"ip,omitempty"`
	Endpoint    string         `json:"endpoint,omitempty"`
	Method      string         `json:"method,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	// Derived marks events synthesized by escalation or analysis.
	Derived bool `json:"derived,omitempty"`
}

// IPRecord tracks activity from one client address. FailedLogins counts
// the failures since FailedSince and restarts once that is older than the
// retention window.
type IPRecord struct {
	IP           string
	Count        int
	FailedLogins int
	FailedSince  time.Time
	LastSeen     time.Time
	EventTypes   []EventType

	lastCoordinatedFlag time.Time
}

func (r *IPRecord) observe(t EventType, at time.Time) {
	r.Count++
	r.LastSeen = at
	for _, seen := range r.EventTypes {
		if seen == t {
			return
		}
	}
	r.EventTypes = append(r.EventTypes, t)
}

// UserRecord tracks behaviour of one account. Records decay daily and are
// never deleted.
type UserRecord struct {
	UserID            string
	FailedLogins      int
	LastLoginAttempt  time.Time
	SuspiciousActions int
	RecentEndpoints   []string

	actionsFlagged bool
}

func (r *IPRecord) failedLogin(at time.Time, window time.Duration) int {
	if r.FailedLogins == 0 || at.Sub(r.FailedSince) >= window {
		r.FailedLogins = 0
		r.FailedSince = at
	}
	r.FailedLogins++
	return r.FailedLogins
}

func (r *UserRecord) pushEndpoint(endpoint string, max int) {
	if endpoint == "" {
		return
	}
	r.RecentEndpoints = append(r.RecentEndpoints, endpoint)
	if over := len(r.RecentEndpoints) - max; over > 0 {
		r.RecentEndpoints = append(r.RecentEndpoints[:0:0], r.RecentEndpoints[over:]...)
	}
}

// decay zeroes failed logins, halves suspicious actions and forgets
// endpoints.
func (r *UserRecord) decay() {
	r.FailedLogins = 0
	r.SuspiciousActions /= 2
	r.RecentEndpoints = nil
	r.actionsFlagged = false
}

func (r *UserRecord) clone() UserRecord {
	c := *r
	c.RecentEndpoints = append([]string(nil), r.RecentEndpoints...)
	return c
}

func (r *IPRecord) clone() IPRecord {
	c := *r
	c.EventTypes = append([]EventType(nil), r.EventTypes...)
	return c
}
