package workers

// Justification: the scheduler is the only caller of Tick and Sweep in a
// running process. These tests pin that one pass reaches every collaborator
// and that time comes from the injected clock, not the ticker.

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"github.com/khaleddesign/chantierpro-sub001/internal/kvstore"
	"github.com/khaleddesign/chantierpro-sub001/internal/monitor"
	"github.com/khaleddesign/chantierpro-sub001/internal/platform/logger"
	"github.com/khaleddesign/chantierpro-sub001/internal/securelog"
)

type countingPool struct {
	calls int
}

func (p *countingPool) RecordPoolStats() {
	p.calls++
}

type SchedulerSuite struct {
	suite.Suite
	ctx      context.Context
	now      time.Time
	memory   *kvstore.Memory
	monitor  *monitor.Monitor
	pool     *countingPool
	metrics  *monitor.Metrics
	schedule *Scheduler
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerSuite))
}

func (s *SchedulerSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }

	s.memory = kvstore.NewMemory(kvstore.WithClock(clock))
	m, err := monitor.New(securelog.New(), monitor.WithClock(clock))
	s.Require().NoError(err)
	s.monitor = m
	s.pool = &countingPool{}
	s.metrics = monitor.NewMetrics(prometheus.NewRegistry())

	s.schedule = New(s.monitor,
		WithSweeper(s.memory),
		WithPoolRecorder(s.pool),
		WithMetrics(s.metrics),
		WithClock(clock),
		WithLogger(logger.Discard()),
	)
}

func (s *SchedulerSuite) TestRunOnce() {
	s.memory.Set(s.ctx, "ratelimit:a:auth", "1", time.Minute)
	s.memory.Set(s.ctx, "ratelimit:b:auth", "1", time.Hour)

	res := s.schedule.RunOnce(s.ctx)
	s.False(res.Tick.Analyzed)
	s.Zero(res.Swept)
	s.Equal(2, res.FallbackEntries)
	s.Equal(1, s.pool.calls)

	s.now = s.now.Add(5 * time.Minute)
	res = s.schedule.RunOnce(s.ctx)
	s.True(res.Tick.Analyzed)
	s.Equal(1, res.Swept)
	s.Equal(1, res.FallbackEntries)
	s.Equal(2, s.pool.calls)

	s.Equal(float64(1), testutil.ToFloat64(s.metrics.SchedulerRunsTotal.WithLabelValues("idle")))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.SchedulerRunsTotal.WithLabelValues("analysis")))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.FallbackEntries))
}

func (s *SchedulerSuite) TestRunOnceWithoutOptionalCollaborators() {
	res := New(s.monitor, WithClock(func() time.Time { return s.now.Add(15 * time.Minute) })).RunOnce(s.ctx)
	s.True(res.Tick.Analyzed)
	s.True(res.Tick.CleanedUp)
	s.Zero(res.FallbackEntries)
}

func (s *SchedulerSuite) TestStartStopsOnCancel() {
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	go func() {
		done <- New(s.monitor, WithInterval(time.Millisecond), WithLogger(logger.Discard())).Start(ctx)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		s.True(errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		s.Fail("scheduler did not stop")
	}
}
