// Package monitor correlates security events. It keeps a rolling buffer of
// events and per-IP and per-user tracking records, and escalates to derived
// SUSPICIOUS_IP and UNUSUAL_USER_BEHAVIOR events when thresholds are crossed.
//
// All state is in process memory and owned by one Monitor. Each collection
// has its own lock; periodic passes copy before iterating. Time only moves
// through the injected clock and Tick, so tests drive analysis and cleanup
// deterministically.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/khaleddesign/chantierpro-sub001/internal/platform/logger"
	"github.com/khaleddesign/chantierpro-sub001/internal/securelog"
	"github.com/khaleddesign/chantierpro-sub001/pkg/requestcontext"
)

// Thresholds and intervals.
type Config struct {
	FailedLoginsPerIP        int
	FailedLoginsPerUser      int
	SuspiciousActionsPerUser int
	RecentEndpoints          int

	CoordinatedEventsPerIP int
	SpikeEvents            int

	AnalysisInterval time.Duration
	AnalysisWindow   time.Duration
	CleanupInterval  time.Duration
	Retention        time.Duration
}

func DefaultConfig() Config {
	return Config{
		FailedLoginsPerIP:        10,
		FailedLoginsPerUser:      5,
		SuspiciousActionsPerUser: 20,
		RecentEndpoints:          20,
		CoordinatedEventsPerIP:   20,
		SpikeEvents:              10,
		AnalysisInterval:         5 * time.Minute,
		AnalysisWindow:           time.Hour,
		CleanupInterval:          15 * time.Minute,
		Retention:                24 * time.Hour,
	}
}

// AlertHandler runs synchronously for every high or critical event.
type AlertHandler func(ctx context.Context, event Event)

// AutoAction is the mitigation hook for SUSPICIOUS_IP and
// UNUSUAL_USER_BEHAVIOR events. The default only records a flag in the log.
type AutoAction func(ctx context.Context, event Event)

type Monitor struct {
	seclog     *securelog.Logger
	sanitizer  *securelog.Sanitizer
	console    *slog.Logger
	alert      AlertHandler
	autoAction AutoAction
	metrics    *Metrics
	config     Config
	now        func() time.Time

	eventsMu sync.Mutex
	events   []Event

	ipsMu sync.Mutex
	ips   map[string]*IPRecord

	usersMu sync.Mutex
	users   map[string]*UserRecord

	// tickMu serialises Tick. lastAnalysis and lastCleanup are also read by
	// GetMonitoringStats, which may run from an alert handler inside Tick.
	tickMu       sync.Mutex
	lastAnalysis atomic.Pointer[time.Time]
	lastCleanup  atomic.Pointer[time.Time]
	lastDecay    time.Time
	lastSpike    time.Time
}

type Option func(*Monitor)

// WithLogger sets the console logger used for alerts and auto actions.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.console = l
		}
	}
}

func WithAlertHandler(h AlertHandler) Option {
	return func(m *Monitor) {
		if h != nil {
			m.alert = h
		}
	}
}

func WithAutoAction(a AutoAction) Option {
	return func(m *Monitor) {
		if a != nil {
			m.autoAction = a
		}
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(m *Monitor) {
		m.metrics = metrics
	}
}

func WithConfig(cfg Config) Option {
	return func(m *Monitor) {
		m.config = cfg
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// New creates a Monitor writing through seclog.
func New(seclog *securelog.Logger, opts ...Option) (*Monitor, error) {
	if seclog == nil {
		return nil, errors.New("secure logger is required")
	}
	m := &Monitor{
		seclog:    seclog,
		sanitizer: securelog.NewSanitizer(),
		console:   logger.Discard(),
		config:    DefaultConfig(),
		now:       time.Now,
		ips:       make(map[string]*IPRecord),
		users:     make(map[string]*UserRecord),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.alert == nil {
		m.alert = m.consoleAlert
	}
	if m.autoAction == nil {
		m.autoAction = m.flagOnly
	}

	start := m.now()
	m.lastAnalysis.Store(&start)
	m.lastCleanup.Store(&start)
	m.lastDecay = start
	return m, nil
}

// EventOption sets the optional parts of an event.
type EventOption func(*eventInput)

type eventInput struct {
	request  *requestcontext.Descriptor
	userID   string
	metadata map[string]any
}

// WithRequest attaches the request descriptor. Without it the descriptor in
// ctx is used when present.
func WithRequest(d requestcontext.Descriptor) EventOption {
	return func(in *eventInput) {
		in.request = &d
	}
}

func WithUser(userID string) EventOption {
	return func(in *eventInput) {
		in.userID = userID
	}
}

func WithMetadata(metadata map[string]any) EventOption {
	return func(in *eventInput) {
		in.metadata = metadata
	}
}

// LogSecurityEvent records an event, updates IP and user tracking and emits
// any escalation the event causes. It returns the recorded event.
func (m *Monitor) LogSecurityEvent(ctx context.Context, eventType EventType, severity Severity, description string, opts ...EventOption) Event {
	in := &eventInput{}
	for _, opt := range opts {
		opt(in)
	}
	event := m.newEvent(ctx, eventType, severity, description, in)

	m.record(ctx, event, in.request)
	m.track(ctx, event)
	return event
}

func (m *Monitor) newEvent(ctx context.Context, eventType EventType, severity Severity, description string, in *eventInput) Event {
	event := Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		Severity:    severity,
		Description: description,
		Timestamp:   m.now(),
	}

	req := in.request
	if req == nil {
		if d, ok := requestcontext.FromContext(ctx); ok {
			req = &d
			in.request = req
		}
	}
	if req != nil {
		if ip := req.ClientIP(); ip != requestcontext.Unknown {
			event.IP = ip
		}
		event.Endpoint = req.Path()
		event.Method = req.Method
	}

	switch {
	case in.userID != "":
		event.UserID = in.userID
	case req != nil && req.UserID != "":
		event.UserID = req.UserID
	default:
		event.UserID = requestcontext.UserID(ctx)
	}

	if in.metadata != nil {
		if clean, ok := m.sanitizer.Sanitize(in.metadata).(map[string]any); ok {
			event.Metadata = clean
		}
	}
	return event
}

// record appends the event, writes it through the secure logger and runs
// the urgent path. Derived events come through here too.
func (m *Monitor) record(ctx context.Context, event Event, req *requestcontext.Descriptor) {
	m.eventsMu.Lock()
	m.events = append(m.events, event)
	m.eventsMu.Unlock()

	m.metrics.IncrementEvent(event)

	metadata := map[string]any{
		"event_id": event.ID,
		"type":     string(event.Type),
		"severity": event.Severity.String(),
	}
	if event.Derived {
		metadata["derived"] = true
	}
	if event.IP != "" {
		metadata["ip"] = event.IP
	}
	for k, v := range event.Metadata {
		if _, taken := metadata[k]; !taken {
			metadata[k] = v
		}
	}
	logOpts := []securelog.Option{securelog.WithMetadata(metadata)}
	if req != nil {
		logOpts = append(logOpts, securelog.WithRequest(*req))
	}
	if event.UserID != "" {
		logOpts = append(logOpts, securelog.WithUser(event.UserID))
	}
	m.seclog.Log(ctx, logLevel(event.Severity), event.Description, logOpts...)

	if event.Severity.Urgent() {
		m.alert(ctx, event)
		if event.Type == EventSuspiciousIP || event.Type == EventUnusualUserBehavior {
			m.autoAction(ctx, event)
		}
	}
}

// derive synthesizes an escalated event and feeds it back through record.
func (m *Monitor) derive(ctx context.Context, eventType EventType, severity Severity, description string, base Event, metadata map[string]any) Event {
	event := Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		Severity:    severity,
		Description: description,
		UserID:      base.UserID,
		IP:          base.IP,
		Endpoint:    base.Endpoint,
		Method:      base.Method,
		Metadata:    metadata,
		Timestamp:   m.now(),
		Derived:     true,
	}
	m.metrics.IncrementEscalation(eventType)
	m.record(ctx, event, nil)
	return event
}

func logLevel(s Severity) securelog.Level {
	switch {
	case s >= SeverityHigh:
		return securelog.LevelSecurity
	case s == SeverityMedium:
		return securelog.LevelWarn
	default:
		return securelog.LevelAudit
	}
}

func (m *Monitor) consoleAlert(ctx context.Context, e Event) {
	m.console.Log(ctx, logger.LevelSecurity, "URGENT security event",
		"type", e.Type,
		"severity", e.Severity.String(),
		"description", e.Description,
		"ip", e.IP,
		"user_id", e.UserID,
		"event_id", e.ID,
	)
}

func (m *Monitor) flagOnly(ctx context.Context, e Event) {
	m.console.WarnContext(ctx, "automatic action: subject flagged for review",
		"type", e.Type,
		"ip", e.IP,
		"user_id", e.UserID,
		"event_id", e.ID,
	)
}
