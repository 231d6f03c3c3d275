package kvstore

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/khaleddesign/chantierpro-sub001/internal/platform/config"
)

type StoreSuite struct {
	suite.Suite
	srv     *miniredis.Miniredis
	client  *redis.Client
	store   *Store
	metrics *Metrics
	ctx     context.Context
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.srv = miniredis.RunT(s.T())
	s.client = redis.NewClient(&redis.Options{
		Addr:        s.srv.Addr(),
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
		ReadTimeout: 200 * time.Millisecond,
	})
	s.metrics = NewMetrics(prometheus.NewRegistry())
	s.store = NewWithClient(s.client,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
	)
}

func (s *StoreSuite) TearDownTest() {
	_ = s.store.Close()
}

// =============================================================================
// Construction
// =============================================================================
// Justification: a missing or unreachable backend must never fail startup.

func (s *StoreSuite) TestOpen() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.Run("no url means permanent fallback", func() {
		store := Open(s.ctx, config.RedisConfig{}, WithLogger(logger))
		s.True(store.UsingFallback())

		store.Set(s.ctx, "fresh", "value", time.Minute)
		v, ok := store.Get(s.ctx, "fresh")
		s.True(ok)
		s.Equal("value", v)
		s.NoError(store.Close())
	})

	s.Run("unreachable server means permanent fallback", func() {
		dead := miniredis.RunT(s.T())
		addr := dead.Addr()
		dead.Close()

		store := Open(s.ctx, config.RedisConfig{
			URL:         "redis://" + addr,
			DialTimeout: 200 * time.Millisecond,
		}, WithLogger(logger))
		s.True(store.UsingFallback())
		s.False(store.Reconnect(s.ctx))
	})

	s.Run("reachable server is used", func() {
		store := Open(s.ctx, config.RedisConfig{
			URL:         "redis://" + s.srv.Addr(),
			DialTimeout: time.Second,
		}, WithLogger(logger))
		defer store.Close()

		s.False(store.UsingFallback())
		store.Set(s.ctx, "remote", "yes", 0)
		got, err := s.srv.Get("remote")
		s.NoError(err)
		s.Equal("yes", got)
		store.RecordPoolStats()
	})
}

// =============================================================================
// Backend operations
// =============================================================================

func (s *StoreSuite) TestStringCommands() {
	s.store.Set(s.ctx, "k", "v", time.Minute)
	v, ok := s.store.Get(s.ctx, "k")
	s.True(ok)
	s.Equal("v", v)
	s.Equal(int64(60), s.store.TTL(s.ctx, "k"))
	s.True(s.srv.Exists("k"))

	_, ok = s.store.Get(s.ctx, "missing")
	s.False(ok)
	s.Equal(int64(-1), s.store.TTL(s.ctx, "missing"))

	s.Equal(int64(1), s.store.Incr(s.ctx, "n"))
	s.Equal(int64(2), s.store.Incr(s.ctx, "n"))
	s.Equal(int64(-1), s.store.TTL(s.ctx, "n"))
	s.True(s.store.Expire(s.ctx, "n", 10*time.Second))
	s.Equal(int64(10), s.store.TTL(s.ctx, "n"))
	s.False(s.store.Expire(s.ctx, "absent", time.Second))

	s.Equal(int64(2), s.store.Del(s.ctx, "k", "n", "absent"))
	s.Equal(int64(0), s.store.Del(s.ctx))

	s.False(s.store.UsingFallback(), "missing keys are not backend failures")
}

func (s *StoreSuite) TestKeys() {
	s.store.Set(s.ctx, "ratelimit:b:auth", "1", 0)
	s.store.Set(s.ctx, "ratelimit:a:read", "1", 0)
	s.store.Set(s.ctx, "rate?x", "1", 0)
	s.store.Set(s.ctx, "ratex", "1", 0)
	s.store.Set(s.ctx, "other", "1", 0)

	s.Equal([]string{"ratelimit:a:read", "ratelimit:b:auth"}, s.store.Keys(s.ctx, "ratelimit:*"))
	s.Equal([]string{"other"}, s.store.Keys(s.ctx, "other"))
	s.Empty(s.store.Keys(s.ctx, "nope"))
	s.Equal([]string{"rate?x"}, s.store.Keys(s.ctx, "rate?*"), "glob characters in the prefix are literal")
}

func (s *StoreSuite) TestHashes() {
	s.store.HSet(s.ctx, "h", map[string]string{"count": "1", "resetTime": "42"})
	s.Equal(int64(5), s.store.HIncrBy(s.ctx, "h", "count", 4))
	v, ok := s.store.HGet(s.ctx, "h", "count")
	s.True(ok)
	s.Equal("5", v)
	_, ok = s.store.HGet(s.ctx, "h", "absent")
	s.False(ok)
	s.Equal(map[string]string{"count": "5", "resetTime": "42"}, s.store.HGetAll(s.ctx, "h"))
	s.Empty(s.store.HGetAll(s.ctx, "missing"))
	s.False(s.store.UsingFallback())
}

func (s *StoreSuite) TestPipeline() {
	s.Run("read pair on a missing key", func() {
		res := s.store.Pipeline().HGetAll("rl").PTTL("rl").Exec(s.ctx)
		s.Require().Len(res, 2)
		s.Empty(res[0].StringMap())
		s.Equal(int64(-2), res[1].Int())
	})

	s.Run("window creation then read pair", func() {
		res := s.store.Pipeline().
			HSet("rl", map[string]string{"count": "1"}).
			PExpire("rl", time.Minute).
			Exec(s.ctx)
		s.Require().Len(res, 2)
		s.NoError(res[0].Err)
		s.Equal(true, res[1].Val)

		res = s.store.Pipeline().HGetAll("rl").PTTL("rl").Exec(s.ctx)
		s.Equal(map[string]string{"count": "1"}, res[0].StringMap())
		s.Equal(int64(60000), res[1].Int())
	})

	s.Run("nil replies and reply errors do not degrade", func() {
		s.srv.Set("txt", "abc")
		res := s.store.Pipeline().Get("nothing").Incr("txt").Get("txt").Exec(s.ctx)
		s.Require().Len(res, 3)
		_, ok := res[0].Str()
		s.False(ok)
		s.Error(res[1].Err)
		v, _ := res[2].Str()
		s.Equal("abc", v)
		s.False(s.store.UsingFallback())
	})
}

// =============================================================================
// Degradation
// =============================================================================
// Justification: a backend failure is absorbed, the same call is answered by
// the fallback, and later calls stay on the fallback until Reconnect.

func (s *StoreSuite) TestBackendFailureSwitchesToFallback() {
	s.Equal(0.0, testutil.ToFloat64(s.metrics.FallbackActive))
	s.srv.Close()

	s.store.Set(s.ctx, "k", "v", time.Minute)
	s.True(s.store.UsingFallback())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.FallbackActive))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.BackendErrors.WithLabelValues("set")))

	v, ok := s.store.Get(s.ctx, "k")
	s.True(ok)
	s.Equal("v", v)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.FallbackOps.WithLabelValues("get")))
	s.Equal(0.0, testutil.ToFloat64(s.metrics.BackendErrors.WithLabelValues("get")), "no backend attempt once degraded")
}

func (s *StoreSuite) TestPipelineFailureReplaysOnFallback() {
	s.srv.Close()

	res := s.store.Pipeline().
		HSet("rl", map[string]string{"count": "1"}).
		PExpire("rl", time.Minute).
		HGetAll("rl").
		Exec(s.ctx)
	s.Require().Len(res, 3)
	s.True(s.store.UsingFallback())
	s.Equal(map[string]string{"count": "1"}, res[2].StringMap())
	s.Equal(map[string]string{"count": "1"}, s.store.Fallback().HGetAll(s.ctx, "rl"))
}

func (s *StoreSuite) TestReconnect() {
	s.True(s.store.Reconnect(s.ctx), "already connected")

	s.srv.Close()
	s.store.Incr(s.ctx, "n")
	s.Require().True(s.store.UsingFallback())
	s.False(s.store.Reconnect(s.ctx))

	s.Require().NoError(s.srv.Restart())
	s.True(s.store.Reconnect(s.ctx))
	s.False(s.store.UsingFallback())
	s.Equal(0.0, testutil.ToFloat64(s.metrics.FallbackActive))

	s.Equal(int64(1), s.store.Incr(s.ctx, "n"), "fallback writes are not migrated")
}
