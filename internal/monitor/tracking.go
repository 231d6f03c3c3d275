package monitor

import (
	"context"
	"fmt"
)

// suspicious reports whether an event counts against its user. Failed logins
// have their own counter.
func suspicious(e Event) bool {
	return e.Type != EventFailedLogin && e.Severity >= SeverityMedium
}

func (m *Monitor) track(ctx context.Context, event Event) {
	if event.Derived {
		return
	}
	if event.IP != "" {
		if crossed, failed := m.trackIP(event); crossed {
			m.derive(ctx, EventSuspiciousIP, SeverityCritical,
				fmt.Sprintf("%d failed logins from %s", failed, event.IP),
				event,
				map[string]any{"reason": "brute_force", "failed_logins": failed},
			)
		}
	}
	if event.UserID != "" {
		if reason, count := m.trackUser(event); reason != "" {
			m.derive(ctx, EventUnusualUserBehavior, SeverityHigh,
				fmt.Sprintf("unusual behaviour for user %s: %s", event.UserID, reason),
				event,
				map[string]any{"reason": reason, "count": count},
			)
		}
	}
}

// trackIP returns true exactly when this event brings the IP's failed login
// count for the current retention window to the threshold.
func (m *Monitor) trackIP(event Event) (bool, int) {
	m.ipsMu.Lock()
	defer m.ipsMu.Unlock()

	rec, ok := m.ips[event.IP]
	if !ok {
		rec = &IPRecord{IP: event.IP}
		m.ips[event.IP] = rec
	}
	rec.observe(event.Type, event.Timestamp)

	if event.Type != EventFailedLogin {
		return false, rec.FailedLogins
	}
	failed := rec.failedLogin(event.Timestamp, m.config.Retention)
	return failed == m.config.FailedLoginsPerIP, failed
}

// trackUser returns the escalation reason when this event brings one of the
// user's counters to its threshold.
func (m *Monitor) trackUser(event Event) (string, int) {
	m.usersMu.Lock()
	defer m.usersMu.Unlock()

	rec, ok := m.users[event.UserID]
	if !ok {
		rec = &UserRecord{UserID: event.UserID}
		m.users[event.UserID] = rec
	}
	rec.pushEndpoint(event.Endpoint, m.config.RecentEndpoints)

	switch {
	case event.Type == EventFailedLogin:
		rec.FailedLogins++
		rec.LastLoginAttempt = event.Timestamp
		if rec.FailedLogins == m.config.FailedLoginsPerUser {
			return reasonFailedLogins, rec.FailedLogins
		}
	case suspicious(event):
		rec.SuspiciousActions++
		if rec.SuspiciousActions == m.config.SuspiciousActionsPerUser {
			rec.actionsFlagged = true
			return reasonSuspiciousActions, rec.SuspiciousActions
		}
	}
	return "", 0
}

const (
	reasonFailedLogins      = "failed_logins"
	reasonSuspiciousActions = "suspicious_actions"
)

// IPRecord returns a copy of the tracking record for ip.
func (m *Monitor) IPRecord(ip string) (IPRecord, bool) {
	m.ipsMu.Lock()
	defer m.ipsMu.Unlock()
	rec, ok := m.ips[ip]
	if !ok {
		return IPRecord{}, false
	}
	return rec.clone(), true
}

// UserRecord returns a copy of the tracking record for userID.
func (m *Monitor) UserRecord(userID string) (UserRecord, bool) {
	m.usersMu.Lock()
	defer m.usersMu.Unlock()
	rec, ok := m.users[userID]
	if !ok {
		return UserRecord{}, false
	}
	return rec.clone(), true
}
