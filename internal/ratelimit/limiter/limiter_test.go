package limiter

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/khaleddesign/chantierpro-sub001/internal/kvstore"
	"github.com/khaleddesign/chantierpro-sub001/internal/ratelimit/metrics"
	"github.com/khaleddesign/chantierpro-sub001/internal/ratelimit/models"
	dErrors "github.com/khaleddesign/chantierpro-sub001/pkg/domain-errors"
	"github.com/khaleddesign/chantierpro-sub001/pkg/testutil"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// backend is one storage configuration the limiter must behave identically
// on.
type backend struct {
	name    string
	store   kvstore.KeyValueStore
	clock   *clock
	advance func(time.Duration)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func backends(t *testing.T) []backend {
	t.Helper()
	start := time.Date(2025, 5, 12, 8, 30, 0, 0, time.UTC)

	memClock := &clock{now: start}
	mem := kvstore.NewMemory(kvstore.WithClock(memClock.Now))

	redisClock := &clock{now: start}
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	remote := kvstore.NewWithClient(client, kvstore.WithLogger(discardLogger()))

	// The backend goes away before the first call: every check is served by
	// the fallback after the store degrades.
	deadClock := &clock{now: start}
	dead := miniredis.RunT(t)
	deadClient := redis.NewClient(&redis.Options{
		Addr:        dead.Addr(),
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	dead.Close()
	t.Cleanup(func() { _ = deadClient.Close() })
	degraded := kvstore.NewWithClient(deadClient,
		kvstore.WithLogger(discardLogger()),
		kvstore.WithFallback(kvstore.NewMemory(kvstore.WithClock(deadClock.Now))),
	)

	return []backend{
		{name: "memory", store: mem, clock: memClock, advance: memClock.advance},
		{name: "redis", store: remote, clock: redisClock, advance: func(d time.Duration) {
			redisClock.advance(d)
			srv.FastForward(d)
		}},
		{name: "degraded redis", store: degraded, clock: deadClock, advance: deadClock.advance},
	}
}

func newService(t *testing.T, b backend) *Service {
	t.Helper()
	svc, err := New(b.store, WithLogger(discardLogger()), WithClock(b.clock.Now))
	require.NoError(t, err)
	return svc
}

// =============================================================================
// Window accounting
// =============================================================================
// Justification: every property must hold on each backend, including after
// the store has degraded to its in-process fallback.

func TestWindowAccounting(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			svc := newService(t, b)
			identity := "203.0.113.7:Mozilla/5.0"
			maxRequests := svc.Limit(models.CategoryFinancial).MaxRequests

			var resetTime time.Time
			for i := 1; i <= maxRequests; i++ {
				res, err := svc.CheckLimit(ctx, identity, models.CategoryFinancial)
				require.NoError(t, err)
				assert.True(t, res.Allowed, "request %d", i)
				assert.Equal(t, maxRequests-i, res.Remaining, "request %d", i)
				assert.Equal(t, i, res.TotalRequests)
				if i == 1 {
					resetTime = res.ResetTime
				} else {
					assert.Equal(t, resetTime.UnixMilli(), res.ResetTime.UnixMilli())
				}
			}

			for i := 0; i < 5; i++ {
				b.advance(time.Second)
				res, err := svc.CheckLimit(ctx, identity, models.CategoryFinancial)
				require.NoError(t, err)
				assert.False(t, res.Allowed)
				assert.Equal(t, 0, res.Remaining)
				assert.Equal(t, maxRequests, res.TotalRequests, "denied requests are not counted")
				assert.Equal(t, resetTime.UnixMilli(), res.ResetTime.UnixMilli(), "denials do not move the window")
			}

			b.advance(time.Minute)
			res, err := svc.CheckLimit(ctx, identity, models.CategoryFinancial)
			require.NoError(t, err)
			assert.True(t, res.Allowed)
			assert.Equal(t, maxRequests-1, res.Remaining)
			assert.True(t, res.ResetTime.After(resetTime))
		})
	}
}

func TestAuthCategoryScenario(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			svc := newService(t, b)
			identity := models.DeriveIdentity("198.51.100.4", "", "Mozilla/5.0 (Macintosh)")

			var allowed, denied int
			for i := 0; i < 5; i++ {
				b.advance(time.Minute)
				res, err := svc.CheckLimit(ctx, identity, models.CategoryAuth)
				require.NoError(t, err)
				if res.Allowed {
					allowed++
					continue
				}
				denied++
				assert.Positive(t, res.RetryAfter(b.clock.Now()))
			}
			assert.Equal(t, 3, allowed)
			assert.Equal(t, 2, denied)
		})
	}
}

func TestIdentitiesAndCategoriesAreIsolated(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			svc := newService(t, b)

			for i := 0; i < 3; i++ {
				_, err := svc.CheckLimit(ctx, "a:ua", models.CategoryAuth)
				require.NoError(t, err)
			}
			res, _ := svc.CheckLimit(ctx, "a:ua", models.CategoryAuth)
			assert.False(t, res.Allowed)

			res, _ = svc.CheckLimit(ctx, "b:ua", models.CategoryAuth)
			assert.True(t, res.Allowed)
			res, _ = svc.CheckLimit(ctx, "a:ua", models.CategoryRead)
			assert.True(t, res.Allowed)
			assert.Equal(t, 99, res.Remaining)
		})
	}
}

// =============================================================================
// Service Suite
// =============================================================================

type ServiceSuite struct {
	suite.Suite
	clock   *clock
	store   *kvstore.Memory
	metrics *metrics.Metrics
	svc     *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = &clock{now: time.Date(2025, 5, 12, 8, 30, 0, 0, time.UTC)}
	s.store = kvstore.NewMemory(kvstore.WithClock(s.clock.Now))
	s.metrics = metrics.New(prometheus.NewRegistry())

	svc, err := New(s.store,
		WithLogger(discardLogger()),
		WithClock(s.clock.Now),
		WithMetrics(s.metrics),
	)
	s.Require().NoError(err)
	s.svc = svc
}

func (s *ServiceSuite) TestNew() {
	_, err := New(nil)
	s.Error(err)

	_, err = New(s.store, WithConfig(nil))
	s.Error(err)
}

func (s *ServiceSuite) TestUnknownCategoryIsRejected() {
	_, err := s.svc.CheckLimit(s.ctx, "x:y", models.Category("premium"))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = s.svc.Reset(s.ctx, "x:y", models.Category("premium"))
	s.Error(err)
	_, err = s.svc.Usage(s.ctx, "x:y", models.Category("premium"))
	s.Error(err)
}

func (s *ServiceSuite) TestKeyWithoutExpiryStartsFreshWindow() {
	key := models.NewKey("x:y", models.CategoryWrite).String()
	s.store.HSet(s.ctx, key, map[string]string{"count": "20"})

	res, err := s.svc.CheckLimit(s.ctx, "x:y", models.CategoryWrite)
	s.Require().NoError(err)
	s.True(res.Allowed)
	s.Equal(19, res.Remaining)
	s.Equal(int64(60), s.store.TTL(s.ctx, key))
}

func (s *ServiceSuite) TestMissingResetTimeIsDerivedFromTTL() {
	key := models.NewKey("x:y", models.CategoryWrite).String()
	s.store.HSet(s.ctx, key, map[string]string{"count": "3"})
	s.store.Expire(s.ctx, key, 40*time.Second)

	res, err := s.svc.CheckLimit(s.ctx, "x:y", models.CategoryWrite)
	s.Require().NoError(err)
	s.True(res.Allowed)
	s.Equal(4, res.TotalRequests)
	s.Equal(s.clock.Now().Add(40*time.Second), res.ResetTime)
}

func (s *ServiceSuite) TestResetAndUsage() {
	for i := 0; i < 3; i++ {
		_, err := s.svc.CheckLimit(s.ctx, "x:y", models.CategoryAuth)
		s.Require().NoError(err)
	}

	usage, err := s.svc.Usage(s.ctx, "x:y", models.CategoryAuth)
	s.Require().NoError(err)
	s.True(usage.Active)
	s.Equal(3, usage.Count)
	s.Equal(0, usage.Remaining)
	s.Equal(s.clock.Now().Add(15*time.Minute).UnixMilli(), usage.ResetTime.UnixMilli())

	existed, err := s.svc.Reset(s.ctx, "x:y", models.CategoryAuth)
	s.Require().NoError(err)
	s.True(existed)
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.RateLimitResetsTotal))

	usage, err = s.svc.Usage(s.ctx, "x:y", models.CategoryAuth)
	s.Require().NoError(err)
	s.False(usage.Active)
	s.Equal(3, usage.Remaining)

	res, _ := s.svc.CheckLimit(s.ctx, "x:y", models.CategoryAuth)
	s.True(res.Allowed)

	existed, _ = s.svc.Reset(s.ctx, "nobody", models.CategoryAuth)
	s.False(existed)
}

func (s *ServiceSuite) TestGetStats() {
	s.Run("empty store", func() {
		stats, err := s.svc.GetStats(s.ctx, 5)
		s.Require().NoError(err)
		s.Equal(0, stats.TotalActive)
		s.Empty(stats.TopIdentities)
		s.True(stats.UsingFallback)
		s.Len(stats.ActiveByCategory, len(models.Categories()))
	})

	s.Run("ranks identities by count", func() {
		hit := func(identity string, category models.Category, n int) {
			for i := 0; i < n; i++ {
				_, err := s.svc.CheckLimit(s.ctx, identity, category)
				s.Require().NoError(err)
			}
		}
		hit("1.1.1.1:a", models.CategoryRead, 7)
		hit("2.2.2.2:b", models.CategoryRead, 2)
		hit("2.2.2.2:b", models.CategoryWrite, 4)
		hit("3.3.3.3:c", models.CategoryAuth, 1)
		s.store.Set(s.ctx, "ratelimit:garbage", "x", 0)

		stats, err := s.svc.GetStats(s.ctx, 2)
		s.Require().NoError(err)
		s.Equal(4, stats.TotalActive)
		s.Equal(2, stats.ActiveByCategory[models.CategoryRead])
		s.Equal(1, stats.ActiveByCategory[models.CategoryWrite])
		s.Equal(1, stats.ActiveByCategory[models.CategoryAuth])
		s.Equal(0, stats.ActiveByCategory[models.CategoryUpload])
		s.Equal([]models.IdentityUsage{
			{Identity: "1.1.1.1:a", Category: models.CategoryRead, Count: 7},
			{Identity: "2.2.2.2:b", Category: models.CategoryWrite, Count: 4},
		}, stats.TopIdentities)
		s.Equal(4.0, promtestutil.ToFloat64(s.metrics.RateLimitActiveCounters))
	})

	s.Run("expired windows are not active", func() {
		s.clock.advance(2 * time.Minute)
		stats, err := s.svc.GetStats(s.ctx, 0)
		s.Require().NoError(err)
		s.Equal(1, stats.TotalActive, "only the 15 minute auth window remains")
	})
}

func (s *ServiceSuite) TestDecisionMetrics() {
	for i := 0; i < 5; i++ {
		_, err := s.svc.CheckLimit(s.ctx, "x:y", models.CategoryAuth)
		s.Require().NoError(err)
	}
	s.Equal(3.0, promtestutil.ToFloat64(s.metrics.RateLimitDecisionsTotal.WithLabelValues("auth", metrics.OutcomeAllowed)))
	s.Equal(2.0, promtestutil.ToFloat64(s.metrics.RateLimitDecisionsTotal.WithLabelValues("auth", metrics.OutcomeDenied)))
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.RateLimitWindowsStarted.WithLabelValues("auth")))
}

func (s *ServiceSuite) TestConcurrentChecksNeverExceedLimit() {
	// Open the window first; the increment path is atomic.
	_, err := s.svc.CheckLimit(s.ctx, "x:y", models.CategoryWrite)
	s.Require().NoError(err)

	result := testutil.RunConcurrent(100, func(int) error {
		res, err := s.svc.CheckLimit(s.ctx, "x:y", models.CategoryWrite)
		if err != nil {
			return err
		}
		if !res.Allowed {
			return testutil.ErrRejected
		}
		return nil
	})
	s.Equal(int32(19), result.Successes)
	s.Equal(int32(81), result.Rejected)
	s.Zero(result.Errors)
}
