package monitor

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
)

// TickResult reports which periodic passes ran.
type TickResult struct {
	Analyzed       bool
	CleanedUp      bool
	Decayed        bool
	Escalations    int
	EventsDropped  int
	IPRecordsFreed int
}

// Tick runs the analysis pass when AnalysisInterval has elapsed since the
// previous one and the cleanup pass when CleanupInterval has elapsed. It is
// driven by workers.Scheduler in production and called directly in tests.
func (m *Monitor) Tick(ctx context.Context, now time.Time) TickResult {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	var res TickResult
	if now.Sub(*m.lastAnalysis.Load()) >= m.config.AnalysisInterval {
		res.Analyzed = true
		res.Escalations = m.analyze(ctx, now)
		m.lastAnalysis.Store(&now)
	}
	if now.Sub(*m.lastCleanup.Load()) >= m.config.CleanupInterval {
		res.CleanedUp = true
		res.EventsDropped, res.IPRecordsFreed, res.Decayed = m.cleanup(now)
		m.lastCleanup.Store(&now)
	}
	return res
}

func (m *Monitor) snapshotEvents(since time.Time) []Event {
	m.eventsMu.Lock()
	defer m.eventsMu.Unlock()

	out := make([]Event, 0, len(m.events))
	for _, e := range m.events {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out
}

func (m *Monitor) analyze(ctx context.Context, now time.Time) int {
	recent := m.snapshotEvents(now.Add(-m.config.AnalysisWindow))

	escalations := m.detectCoordinatedAttacks(ctx, now, recent)
	escalations += m.rescanUsers(ctx)
	if m.detectErrorSpike(ctx, now, recent) {
		escalations++
	}
	return escalations
}

// detectCoordinatedAttacks flags IPs with more than CoordinatedEventsPerIP
// recent events of which at least one is high or critical. An IP is flagged
// at most once per analysis window.
func (m *Monitor) detectCoordinatedAttacks(ctx context.Context, now time.Time, recent []Event) int {
	type tally struct {
		count  int
		urgent bool
		last   Event
	}
	byIP := make(map[string]*tally)
	for _, e := range recent {
		if e.IP == "" || e.Derived {
			continue
		}
		t, ok := byIP[e.IP]
		if !ok {
			t = &tally{}
			byIP[e.IP] = t
		}
		t.count++
		t.urgent = t.urgent || e.Severity.Urgent()
		t.last = e
	}

	var flagged []string
	m.ipsMu.Lock()
	for ip, t := range byIP {
		if t.count <= m.config.CoordinatedEventsPerIP || !t.urgent {
			continue
		}
		rec, ok := m.ips[ip]
		if !ok {
			continue
		}
		if !rec.lastCoordinatedFlag.IsZero() && now.Sub(rec.lastCoordinatedFlag) < m.config.AnalysisWindow {
			continue
		}
		rec.lastCoordinatedFlag = now
		flagged = append(flagged, ip)
	}
	m.ipsMu.Unlock()

	slices.Sort(flagged)
	for _, ip := range flagged {
		t := byIP[ip]
		base := Event{IP: ip}
		m.derive(ctx, EventSuspiciousIP, SeverityCritical,
			fmt.Sprintf("possible coordinated attack: %d events from %s in the last hour", t.count, ip),
			base,
			map[string]any{"reason": "coordinated_attack", "events": t.count},
		)
	}
	return len(flagged)
}

// rescanUsers catches users whose suspicious actions reached the threshold
// without a per-event crossing, for example after a decay.
func (m *Monitor) rescanUsers(ctx context.Context) int {
	type hit struct {
		userID string
		count  int
	}
	var hits []hit

	m.usersMu.Lock()
	for id, rec := range m.users {
		if rec.SuspiciousActions >= m.config.SuspiciousActionsPerUser && !rec.actionsFlagged {
			rec.actionsFlagged = true
			hits = append(hits, hit{userID: id, count: rec.SuspiciousActions})
		}
	}
	m.usersMu.Unlock()

	slices.SortFunc(hits, func(a, b hit) int { return strings.Compare(a.userID, b.userID) })
	for _, h := range hits {
		m.derive(ctx, EventUnusualUserBehavior, SeverityHigh,
			fmt.Sprintf("unusual behaviour for user %s: %s", h.userID, reasonSuspiciousActions),
			Event{UserID: h.userID},
			map[string]any{"reason": reasonSuspiciousActions, "count": h.count, "source": "rescan"},
		)
	}
	return len(hits)
}

// detectErrorSpike synthesizes a DATABASE_ERROR_SPIKE when more than
// SpikeEvents recent events are critical or spikes. Escalations such as
// SUSPICIOUS_IP count; earlier synthesized spikes do not. At most one per
// analysis window.
func (m *Monitor) detectErrorSpike(ctx context.Context, now time.Time, recent []Event) bool {
	if !m.lastSpike.IsZero() && now.Sub(m.lastSpike) < m.config.AnalysisWindow {
		return false
	}

	count := 0
	var types []string
	for _, e := range recent {
		if e.Derived && e.Type == EventDatabaseErrorSpike {
			continue
		}
		if e.Severity != SeverityCritical && e.Type != EventDatabaseErrorSpike {
			continue
		}
		count++
		if !slices.Contains(types, string(e.Type)) {
			types = append(types, string(e.Type))
		}
	}
	if count <= m.config.SpikeEvents {
		return false
	}

	slices.Sort(types)
	m.lastSpike = now
	m.derive(ctx, EventDatabaseErrorSpike, SeverityCritical,
		fmt.Sprintf("%d critical events in the last hour (%s)", count, strings.Join(types, ", ")),
		Event{},
		map[string]any{"events": count, "event_types": types},
	)
	return true
}

// cleanup drops expired events and idle IP records and applies the daily
// user decay.
func (m *Monitor) cleanup(now time.Time) (int, int, bool) {
	cutoff := now.Add(-m.config.Retention)

	m.eventsMu.Lock()
	kept := make([]Event, 0, len(m.events))
	for _, e := range m.events {
		if !e.Timestamp.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	dropped := len(m.events) - len(kept)
	m.events = kept
	m.eventsMu.Unlock()

	freed := 0
	m.ipsMu.Lock()
	for ip, rec := range m.ips {
		if rec.LastSeen.Before(cutoff) {
			delete(m.ips, ip)
			freed++
		}
	}
	m.ipsMu.Unlock()

	decayed := false
	if dayOf(now).After(dayOf(m.lastDecay)) {
		m.usersMu.Lock()
		for _, rec := range m.users {
			rec.decay()
		}
		m.usersMu.Unlock()
		m.lastDecay = now
		decayed = true
	}
	return dropped, freed, decayed
}

func dayOf(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
