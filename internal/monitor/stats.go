package monitor

import "time"

// Stats is a read-only snapshot of the monitor.
type Stats struct {
	TotalEvents      int               `json:"totalEvents"`
	EventsLastHour   int               `json:"eventsLastHour"`
	TrackedIPs       int               `json:"trackedIPs"`
	TrackedUsers     int               `json:"trackedUsers"`
	EventsByType     map[EventType]int `json:"eventsByType"`
	EventsBySeverity map[Severity]int  `json:"eventsBySeverity"`
	LastCleanup      time.Time         `json:"lastCleanup"`
	LastAnalysis     time.Time         `json:"lastAnalysis"`
	GeneratedAt      time.Time         `json:"generatedAt"`
}

// GetMonitoringStats summarises the buffer, with per-type and per-severity
// breakdowns over the hour before now. It does not mutate any state.
func (m *Monitor) GetMonitoringStats(now time.Time) Stats {
	stats := Stats{
		EventsByType:     make(map[EventType]int),
		EventsBySeverity: make(map[Severity]int),
		GeneratedAt:      now,
	}
	since := now.Add(-m.config.AnalysisWindow)

	m.eventsMu.Lock()
	stats.TotalEvents = len(m.events)
	for _, e := range m.events {
		if e.Timestamp.Before(since) {
			continue
		}
		stats.EventsLastHour++
		stats.EventsByType[e.Type]++
		stats.EventsBySeverity[e.Severity]++
	}
	m.eventsMu.Unlock()

	m.ipsMu.Lock()
	stats.TrackedIPs = len(m.ips)
	m.ipsMu.Unlock()

	m.usersMu.Lock()
	stats.TrackedUsers = len(m.users)
	m.usersMu.Unlock()

	stats.LastCleanup = *m.lastCleanup.Load()
	stats.LastAnalysis = *m.lastAnalysis.Load()

	return stats
}

// Events returns a copy of the buffered events, oldest first.
func (m *Monitor) Events() []Event {
	m.eventsMu.Lock()
	defer m.eventsMu.Unlock()
	return append([]Event(nil), m.events...)
}

// Now is the monitor's clock.
func (m *Monitor) Now() time.Time {
	return m.now()
}
