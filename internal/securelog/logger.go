// Package securelog is the structured logging facade for security relevant
// records. Every entry is sanitized before it is printed, buffered or handed
// to a sink.
//
// In development entries are written to the console immediately. In
// production they are buffered and drained to a Sink once a minute, or as
// soon as the buffer is full. SECURITY and ERROR entries always reach the
// alert handler in the same call.
package securelog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/khaleddesign/chantierpro-sub001/internal/platform/logger"
	"github.com/khaleddesign/chantierpro-sub001/pkg/requestcontext"
)

const (
	DefaultBufferCapacity = 1000
	DefaultFlushInterval  = time.Minute
)

// AlertHandler receives SECURITY and ERROR entries synchronously.
type AlertHandler func(ctx context.Context, entry Entry)

// Logger is safe for concurrent use. Construct one per process.
type Logger struct {
	console       *slog.Logger
	sanitizer     *Sanitizer
	sink          Sink
	alert         AlertHandler
	metrics       *Metrics
	production    bool
	capacity      int
	flushInterval time.Duration
	now           func() time.Time

	mu     sync.Mutex
	buffer []Entry

	// flushMu keeps sink writes in order.
	flushMu sync.Mutex
	// sinkWarn throttles the sink failure warning; the batch itself is
	// always written to the console.
	sinkWarn rate.Sometimes
}

// LoggerOption configures a Logger.
type LoggerOption func(*Logger)

// WithProduction switches to buffered delivery and drops stack traces.
func WithProduction(production bool) LoggerOption {
	return func(l *Logger) {
		l.production = production
	}
}

// WithConsole sets the console logger used in development, for alerts and
// when the sink fails.
func WithConsole(console *slog.Logger) LoggerOption {
	return func(l *Logger) {
		if console != nil {
			l.console = console
		}
	}
}

func WithSink(sink Sink) LoggerOption {
	return func(l *Logger) {
		if sink != nil {
			l.sink = sink
		}
	}
}

func WithAlertHandler(h AlertHandler) LoggerOption {
	return func(l *Logger) {
		if h != nil {
			l.alert = h
		}
	}
}

func WithMetrics(m *Metrics) LoggerOption {
	return func(l *Logger) {
		l.metrics = m
	}
}

func WithBufferCapacity(n int) LoggerOption {
	return func(l *Logger) {
		if n > 0 {
			l.capacity = n
		}
	}
}

func WithFlushInterval(d time.Duration) LoggerOption {
	return func(l *Logger) {
		if d > 0 {
			l.flushInterval = d
		}
	}
}

// WithClock is for tests.
func WithClock(now func() time.Time) LoggerOption {
	return func(l *Logger) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates a Logger. Without options it behaves as a development logger
// writing to a discarded console.
func New(opts ...LoggerOption) *Logger {
	l := &Logger{
		console:       logger.Discard(),
		sanitizer:     NewSanitizer(),
		sink:          DiscardSink{},
		capacity:      DefaultBufferCapacity,
		flushInterval: DefaultFlushInterval,
		now:           time.Now,
		sinkWarn:      rate.Sometimes{First: 1, Interval: time.Minute},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.alert == nil {
		l.alert = l.consoleAlert
	}
	return l
}

// Option carries the optional parts of a single log call.
type Option func(*call)

type call struct {
	metadata map[string]any
	request  *requestcontext.Descriptor
	userID   string
	err      error
}

func WithMetadata(metadata map[string]any) Option {
	return func(c *call) {
		c.metadata = metadata
	}
}

// WithRequest attaches a request descriptor. Without it the descriptor
// stored in ctx, if any, is used.
func WithRequest(d requestcontext.Descriptor) Option {
	return func(c *call) {
		c.request = &d
	}
}

func WithUser(userID string) Option {
	return func(c *call) {
		c.userID = userID
	}
}

func WithError(err error) Option {
	return func(c *call) {
		c.err = err
	}
}

// Log sanitizes and records one entry and returns what was recorded.
func (l *Logger) Log(ctx context.Context, level Level, msg string, opts ...Option) Entry {
	c := &call{}
	for _, opt := range opts {
		opt(c)
	}
	entry := l.build(ctx, level, msg, c)

	l.metrics.IncrementEntries(level)
	if l.production {
		l.enqueue(ctx, entry)
	} else {
		l.console.Log(ctx, level.Slog(), entry.Message, entry.attrs()...)
	}

	if level.alerting() {
		l.alert(ctx, entry)
	}
	return entry
}

func (l *Logger) Info(ctx context.Context, msg string, opts ...Option) Entry {
	return l.Log(ctx, LevelInfo, msg, opts...)
}

func (l *Logger) Warn(ctx context.Context, msg string, opts ...Option) Entry {
	return l.Log(ctx, LevelWarn, msg, opts...)
}

func (l *Logger) Error(ctx context.Context, msg string, opts ...Option) Entry {
	return l.Log(ctx, LevelError, msg, opts...)
}

func (l *Logger) Security(ctx context.Context, msg string, opts ...Option) Entry {
	return l.Log(ctx, LevelSecurity, msg, opts...)
}

func (l *Logger) Audit(ctx context.Context, msg string, opts ...Option) Entry {
	return l.Log(ctx, LevelAudit, msg, opts...)
}

// Production reports the delivery mode.
func (l *Logger) Production() bool {
	return l.production
}

func (l *Logger) build(ctx context.Context, level Level, msg string, c *call) Entry {
	now := l.now()

	entry := Entry{
		Level:     level,
		Message:   msg,
		Timestamp: now,
		Metadata:  c.metadata,
	}
	if c.err != nil {
		entry.Error = c.err.Error()
	}

	req := c.request
	if req == nil {
		if d, ok := requestcontext.FromContext(ctx); ok {
			req = &d
		}
	}
	if req != nil {
		entry.Context = NewRequestContext(*req, now)
	}

	switch {
	case c.userID != "":
		entry.UserID = c.userID
	case req != nil && req.UserID != "":
		entry.UserID = req.UserID
	default:
		entry.UserID = requestcontext.UserID(ctx)
	}

	if c.err != nil && !l.production {
		entry.Stack = string(debug.Stack())
	}

	l.sanitizer.SanitizeEntry(&entry)
	return entry
}

func (l *Logger) enqueue(ctx context.Context, entry Entry) {
	l.mu.Lock()
	l.buffer = append(l.buffer, entry)
	full := len(l.buffer) >= l.capacity
	var batch []Entry
	if full {
		batch = l.buffer
		l.buffer = make([]Entry, 0, l.capacity)
	}
	l.metrics.SetBuffered(len(l.buffer))
	l.mu.Unlock()

	if full {
		_ = l.deliver(context.WithoutCancel(ctx), batch)
	}
}

// Buffered returns the number of entries waiting for the next flush.
func (l *Logger) Buffered() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buffer)
}

// Flush drains the buffer to the sink. On sink failure the entries are
// written to the console so they are not lost, and the error is returned.
func (l *Logger) Flush(ctx context.Context) error {
	l.mu.Lock()
	batch := l.buffer
	l.buffer = make([]Entry, 0, l.capacity)
	l.metrics.SetBuffered(0)
	l.mu.Unlock()

	return l.deliver(ctx, batch)
}

func (l *Logger) deliver(ctx context.Context, batch []Entry) error {
	if len(batch) == 0 {
		return nil
	}

	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	if err := l.sink.Write(ctx, batch); err != nil {
		l.metrics.IncrementFlush(FlushOutcomeFailed)
		l.sinkWarn.Do(func() {
			l.console.Warn("secure log sink failed, writing batch to console",
				"entries", len(batch),
				"error", err,
			)
		})
		for _, e := range batch {
			l.console.Log(ctx, e.Level.Slog(), e.Message, e.attrs()...)
		}
		return fmt.Errorf("flush %d entries: %w", len(batch), err)
	}
	l.metrics.IncrementFlush(FlushOutcomeDelivered)
	return nil
}

// Run flushes on a fixed interval until ctx is cancelled, then flushes once
// more. It only does work in production mode but is safe to start either way.
func (l *Logger) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := l.Flush(context.WithoutCancel(ctx)); err != nil {
				l.console.Error("final secure log flush failed", "error", err)
			}
			return nil
		case <-ticker.C:
			if err := l.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
				l.console.Error("periodic secure log flush failed", "error", err)
			}
		}
	}
}

// Close flushes remaining entries and closes the sink when it supports it.
func (l *Logger) Close(ctx context.Context) error {
	err := l.Flush(ctx)
	if c, ok := l.sink.(interface{ Close() error }); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}

func (l *Logger) consoleAlert(ctx context.Context, e Entry) {
	args := append([]any{slog.String("alert", string(e.Level))}, e.attrs()...)
	l.console.Log(ctx, logger.LevelSecurity, "CRITICAL EVENT: "+e.Message, args...)
}
