package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/khaleddesign/chantierpro-sub001/internal/monitor"
)

const DefaultInterval = time.Minute

// RunResult describes one scheduler pass.
type RunResult struct {
	Tick            monitor.TickResult
	Swept           int
	FallbackEntries int
	Duration        time.Duration
}

type Ticker interface {
	Tick(ctx context.Context, now time.Time) monitor.TickResult
}

// Sweeper is the in-process fallback store.
type Sweeper interface {
	Sweep() int
	Len() int
}

type PoolRecorder interface {
	RecordPoolStats()
}

type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithInterval sets how often Tick is called. The monitor decides on its own
// which passes are due, so the interval only bounds their latency.
func WithInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithMetrics(m *monitor.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

func WithSweeper(sw Sweeper) Option {
	return func(s *Scheduler) {
		s.sweeper = sw
	}
}

func WithPoolRecorder(p PoolRecorder) Option {
	return func(s *Scheduler) {
		s.pool = p
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// Scheduler drives the monitor's periodic passes and housekeeping of the
// key-value fallback.
type Scheduler struct {
	monitor  Ticker
	sweeper  Sweeper
	pool     PoolRecorder
	logger   *slog.Logger
	interval time.Duration
	metrics  *monitor.Metrics
	now      func() time.Time
}

func New(m Ticker, opts ...Option) *Scheduler {
	s := &Scheduler{
		monitor:  m,
		logger:   slog.Default(),
		interval: DefaultInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs passes until ctx is cancelled and returns ctx.Err().
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res := s.RunOnce(ctx)
			if res.Tick.Analyzed || res.Tick.CleanedUp || res.Swept > 0 {
				s.logger.Info("security_scheduler_pass_completed",
					"analyzed", res.Tick.Analyzed,
					"cleaned_up", res.Tick.CleanedUp,
					"decayed", res.Tick.Decayed,
					"escalations", res.Tick.Escalations,
					"events_dropped", res.Tick.EventsDropped,
					"ip_records_freed", res.Tick.IPRecordsFreed,
					"fallback_swept", res.Swept,
					"duration_ms", res.Duration.Milliseconds(),
				)
			}

		case <-ctx.Done():
			s.logger.Info("security scheduler stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// RunOnce executes a single pass.
func (s *Scheduler) RunOnce(ctx context.Context) RunResult {
	start := s.now()

	var res RunResult
	if s.monitor != nil {
		res.Tick = s.monitor.Tick(ctx, start)
	}
	if s.sweeper != nil {
		res.Swept = s.sweeper.Sweep()
		res.FallbackEntries = s.sweeper.Len()
		s.metrics.SetFallbackEntries(res.FallbackEntries)
	}
	if s.pool != nil {
		s.pool.RecordPoolStats()
	}

	res.Duration = s.now().Sub(start)
	s.metrics.ObserveSchedulerRun(passLabel(res.Tick), res.Duration.Seconds())
	return res
}

func passLabel(t monitor.TickResult) string {
	switch {
	case t.Analyzed && t.CleanedUp:
		return "analysis_cleanup"
	case t.Analyzed:
		return "analysis"
	case t.CleanedUp:
		return "cleanup"
	default:
		return "idle"
	}
}
