package securelog

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/khaleddesign/chantierpro-sub001/internal/platform/logger"
	"github.com/khaleddesign/chantierpro-sub001/pkg/requestcontext"
)

type recordingSink struct {
	mu      sync.Mutex
	batches [][]Entry
	err     error
}

func (s *recordingSink) Write(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, append([]Entry(nil), entries...))
	return nil
}

func (s *recordingSink) entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []Entry
	for _, b := range s.batches {
		all = append(all, b...)
	}
	return all
}

type LoggerSuite struct {
	suite.Suite
	ctx     context.Context
	console *bytes.Buffer
	sink    *recordingSink
	alerts  []Entry
	metrics *Metrics
	now     time.Time
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerSuite))
}

func (s *LoggerSuite) SetupTest() {
	s.ctx = context.Background()
	s.console = &bytes.Buffer{}
	s.sink = &recordingSink{}
	s.alerts = nil
	s.metrics = NewMetrics(prometheus.NewRegistry())
	s.now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
}

func (s *LoggerSuite) SetupSubTest() {
	s.SetupTest()
}

func (s *LoggerSuite) newLogger(production bool, opts ...LoggerOption) *Logger {
	base := []LoggerOption{
		WithProduction(production),
		WithConsole(logger.NewWithWriter(s.console, production)),
		WithSink(s.sink),
		WithMetrics(s.metrics),
		WithClock(func() time.Time { return s.now }),
		WithAlertHandler(func(_ context.Context, e Entry) {
			s.alerts = append(s.alerts, e)
		}),
	}
	return New(append(base, opts...)...)
}

// =============================================================================
// Development delivery
// =============================================================================
// Justification: developers see every entry immediately, already sanitized.

func (s *LoggerSuite) TestDevelopment() {
	s.Run("entry is printed sanitized", func() {
		l := s.newLogger(false)

		entry := l.Info(s.ctx, "profile updated", WithMetadata(map[string]any{
			"user": map[string]any{"password": "s3cr3t", "name": "Bob"},
		}))

		user := entry.Metadata["user"].(map[string]any)
		s.Equal(Redacted, user["password"])
		s.Equal("Bob", user["name"])

		out := s.console.String()
		s.Contains(out, "profile updated")
		s.Contains(out, "Bob")
		s.Contains(out, Redacted)
		s.NotContains(out, "s3cr3t")
		s.Zero(l.Buffered())
	})

	s.Run("errors carry a stack trace", func() {
		l := s.newLogger(false)
		entry := l.Warn(s.ctx, "upstream failed", WithError(errors.New("dial tcp: timeout")))

		s.Equal("dial tcp: timeout", entry.Error)
		s.NotEmpty(entry.Stack)
	})

	s.Run("custom levels are named", func() {
		l := s.newLogger(false)
		l.Audit(s.ctx, "settings changed")
		s.Contains(s.console.String(), "level=AUDIT")
	})
}

// =============================================================================
// Production delivery
// =============================================================================
// Justification: production entries are batched and drained to the sink on a
// timer or when the buffer fills.

func (s *LoggerSuite) TestProductionBuffering() {
	s.Run("entries wait in the buffer", func() {
		l := s.newLogger(true, WithBufferCapacity(3))

		l.Info(s.ctx, "one")
		l.Info(s.ctx, "two")

		s.Equal(2, l.Buffered())
		s.Empty(s.sink.entries())
		s.Empty(s.console.String())
		s.Equal(float64(2), testutil.ToFloat64(s.metrics.BufferedEntries))
	})

	s.Run("full buffer is drained synchronously", func() {
		l := s.newLogger(true, WithBufferCapacity(3))

		l.Info(s.ctx, "one")
		l.Info(s.ctx, "two")
		l.Info(s.ctx, "three")

		s.Zero(l.Buffered())
		got := s.sink.entries()
		s.Require().Len(got, 3)
		s.Equal("one", got[0].Message)
		s.Equal("three", got[2].Message)
	})

	s.Run("flush drains what is buffered", func() {
		l := s.newLogger(true)
		l.Audit(s.ctx, "export generated")

		s.Require().NoError(l.Flush(s.ctx))
		s.Zero(l.Buffered())
		s.Len(s.sink.entries(), 1)
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.Flushes.WithLabelValues(FlushOutcomeDelivered)))

		s.Require().NoError(l.Flush(s.ctx))
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.Flushes.WithLabelValues(FlushOutcomeDelivered)))
	})

	s.Run("sink failure falls back to the console", func() {
		s.sink.err = errors.New("broker unavailable")
		l := s.newLogger(true)
		l.Info(s.ctx, "kept anyway")

		err := l.Flush(s.ctx)
		s.Require().Error(err)
		s.Contains(s.console.String(), "kept anyway")
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.Flushes.WithLabelValues(FlushOutcomeFailed)))
	})

	s.Run("no stack trace in production", func() {
		l := s.newLogger(true)
		entry := l.Info(s.ctx, "failed", WithError(errors.New("boom")))
		s.Empty(entry.Stack)
	})
}

func (s *LoggerSuite) TestAlerts() {
	s.Run("security and error entries alert in production", func() {
		l := s.newLogger(true)

		l.Info(s.ctx, "routine")
		l.Audit(s.ctx, "routine audit")
		l.Security(s.ctx, "brute force detected")
		l.Error(s.ctx, "payment failed")

		s.Require().Len(s.alerts, 2)
		s.Equal(LevelSecurity, s.alerts[0].Level)
		s.Equal(LevelError, s.alerts[1].Level)
		s.Equal(4, l.Buffered())
	})

	s.Run("default alert handler prints to the console", func() {
		l := New(WithProduction(true), WithConsole(logger.NewWithWriter(s.console, true)))
		l.Security(s.ctx, "brute force detected")

		s.Contains(s.console.String(), "CRITICAL EVENT: brute force detected")
		s.Contains(s.console.String(), `"level":"SECURITY"`)
		s.Equal(1, l.Buffered())
	})
}

// =============================================================================
// Secret propagation
// =============================================================================
// Justification: a credential logged under a sensitive key must not survive
// anywhere else in the entry, whether in the request URL or as a map key.

func (s *LoggerSuite) TestSecretsDoNotLeakThroughContextOrKeys() {
	s.Run("secret in query string and metadata key", func() {
		l := s.newLogger(false)

		entry := l.Info(s.ctx, "login",
			WithMetadata(map[string]any{
				"password":   "hunter2024",
				"hunter2024": "x",
			}),
			WithRequest(requestcontext.Descriptor{
				URL:    "/api/login?pw=hunter2024",
				Method: "POST",
			}),
		)

		s.Require().NotNil(entry.Context)
		s.Equal("/api/login?pw="+Redacted, entry.Context.Endpoint)
		s.Equal(Redacted, entry.Metadata["password"])
		s.NotContains(entry.Metadata, "hunter2024")
		s.NotContains(s.console.String(), "hunter2024")
	})

	s.Run("email used as a key", func() {
		l := s.newLogger(false)

		entry := l.Info(s.ctx, "invite sent", WithMetadata(map[string]any{
			"bob@example.com": "pending",
		}))

		s.Equal(map[string]any{Redacted: "pending"}, entry.Metadata)
		s.NotContains(s.console.String(), "bob@example.com")
	})
}

// =============================================================================
// Request context
// =============================================================================

func (s *LoggerSuite) TestRequestContext() {
	chrome := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	s.Run("descriptor fields are carried", func() {
		l := s.newLogger(false)
		entry := l.Info(s.ctx, "request", WithRequest(requestcontext.Descriptor{
			ForwardedFor:  "203.0.113.7, 10.0.0.1",
			UserAgent:     chrome,
			URL:           "/api/devis?token=abc123",
			Method:        "POST",
			CorrelationID: "req-42",
			UserID:        "user-1",
		}))

		rc := entry.Context
		s.Require().NotNil(rc)
		s.Equal("req-42", rc.RequestID)
		s.Equal("203.0.113.7", rc.IP)
		s.Equal("POST", rc.Method)
		s.Equal("/api/devis?"+Redacted, rc.Endpoint)
		s.Equal("Chrome", rc.Browser)
		s.False(rc.Bot)
		s.Equal("2025-03-10T09:00:00Z", rc.Timestamp)
		s.Equal("user-1", entry.UserID)
	})

	s.Run("request id is generated when absent", func() {
		l := s.newLogger(false)
		entry := l.Info(s.ctx, "request", WithRequest(requestcontext.Descriptor{Method: "GET"}))

		s.Require().NotNil(entry.Context)
		_, err := uuid.Parse(entry.Context.RequestID)
		s.NoError(err)
		s.Equal(requestcontext.Unknown, entry.Context.IP)
		s.Equal(requestcontext.Unknown, entry.Context.UserAgent)
	})

	s.Run("descriptor and user are read from the context", func() {
		l := s.newLogger(false)
		ctx := requestcontext.WithDescriptor(s.ctx, requestcontext.Descriptor{RealIP: "198.51.100.2"})
		ctx = requestcontext.WithUserID(ctx, "user-9")

		entry := l.Info(ctx, "from context")
		s.Require().NotNil(entry.Context)
		s.Equal("198.51.100.2", entry.Context.IP)
		s.Equal("user-9", entry.UserID)
	})

	s.Run("explicit user wins", func() {
		l := s.newLogger(false)
		entry := l.Info(requestcontext.WithUserID(s.ctx, "user-9"), "explicit", WithUser("admin-1"))
		s.Equal("admin-1", entry.UserID)
		s.Nil(entry.Context)
	})

	s.Run("crawlers are flagged", func() {
		rc := NewRequestContext(requestcontext.Descriptor{
			UserAgent: "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
		}, s.now)
		s.True(rc.Bot)
	})
}

func TestRunFlushesPeriodically(t *testing.T) {
	sink := &recordingSink{}
	l := New(WithProduction(true), WithSink(sink), WithFlushInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	l.Info(context.Background(), "first")
	assert.Eventually(t, func() bool { return len(sink.entries()) == 1 }, time.Second, 5*time.Millisecond)

	l.Info(context.Background(), "second")
	cancel()
	require.NoError(t, <-done)
	assert.Len(t, sink.entries(), 2)
	assert.Zero(t, l.Buffered())
}
