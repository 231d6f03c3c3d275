package kvstore

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/khaleddesign/chantierpro-sub001/internal/platform/config"
	platformredis "github.com/khaleddesign/chantierpro-sub001/internal/platform/redis"
	"github.com/khaleddesign/chantierpro-sub001/internal/platform/tracing"
)

const scanBatch = 250

// Store delegates to Redis while it is marked connected and serves every
// call from a private Memory otherwise. The first failed call flips the
// store into fallback mode; only Reconnect flips it back.
type Store struct {
	client    *redis.Client
	pool      *platformredis.Client
	fallback  *Memory
	connected atomic.Bool

	logger  *slog.Logger
	tracer  tracing.Tracer
	metrics *Metrics
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithTracer(tracer tracing.Tracer) Option {
	return func(s *Store) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithFallback replaces the private in-process store.
func WithFallback(m *Memory) Option {
	return func(s *Store) {
		if m != nil {
			s.fallback = m
		}
	}
}

func newStore(opts []Option) *Store {
	s := &Store{
		fallback: NewMemory(),
		logger:   slog.Default(),
		tracer:   tracing.Noop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to the backend described by cfg. An empty URL or a failed
// ping leaves the store in fallback mode for the life of the process; the
// condition is logged once.
func Open(ctx context.Context, cfg config.RedisConfig, opts ...Option) *Store {
	s := newStore(opts)

	if cfg.URL == "" {
		s.logger.WarnContext(ctx, "redis not configured, using in-process fallback store")
		s.metrics.setFallbackActive(true)
		return s
	}

	pool, err := platformredis.New(ctx, cfg)
	if err != nil {
		s.logger.WarnContext(ctx, "redis unavailable, using in-process fallback store", "error", err)
		s.metrics.setFallbackActive(true)
		return s
	}

	s.pool = pool
	s.client = pool.Client
	s.connected.Store(true)
	s.metrics.setFallbackActive(false)
	s.logger.InfoContext(ctx, "redis connected")
	return s
}

// NewWithClient wraps an already connected client.
func NewWithClient(client *redis.Client, opts ...Option) *Store {
	s := newStore(opts)
	s.client = client
	if client != nil {
		s.connected.Store(true)
	}
	s.metrics.setFallbackActive(client == nil)
	return s
}

// UsingFallback reports whether calls are served by the in-process store.
func (s *Store) UsingFallback() bool {
	return !s.connected.Load()
}

// Reconnect pings the backend and, on success, routes calls to it again.
// Entries written to the fallback while disconnected are not migrated.
func (s *Store) Reconnect(ctx context.Context) bool {
	if s.client == nil {
		return false
	}
	if s.connected.Load() {
		return true
	}
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.logger.DebugContext(ctx, "redis reconnect failed", "error", err)
		return false
	}
	s.connected.Store(true)
	s.metrics.setFallbackActive(false)
	s.logger.InfoContext(ctx, "redis reconnected, leaving fallback mode")
	return true
}

// RecordPoolStats publishes connection pool gauges when the store owns its
// pool.
func (s *Store) RecordPoolStats() {
	if s.pool != nil {
		s.pool.RecordPoolStats()
	}
}

// Fallback exposes the in-process store for periodic sweeping.
func (s *Store) Fallback() *Memory {
	return s.fallback
}

func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// attempt runs fn against the backend when connected. It returns false when
// the caller must answer from the fallback instead.
func (s *Store) attempt(ctx context.Context, op string, fn func(ctx context.Context) error) bool {
	if !s.connected.Load() {
		s.metrics.recordFallback(op)
		return false
	}

	ctx, span := s.tracer.Start(ctx, "kvstore."+op, tracing.String("db.system", "redis"))
	err := fn(ctx)
	if err == nil || errors.Is(err, redis.Nil) {
		span.End(nil)
		return true
	}
	span.End(err)

	s.metrics.recordBackendError(op)
	s.degrade(ctx, op, err)
	s.metrics.recordFallback(op)
	return false
}

func (s *Store) degrade(ctx context.Context, op string, err error) {
	if s.connected.CompareAndSwap(true, false) {
		s.metrics.setFallbackActive(true)
		s.logger.WarnContext(ctx, "redis operation failed, switching to in-process fallback store",
			"op", op,
			"error", err,
		)
	}
}

func (s *Store) Get(ctx context.Context, key string) (string, bool) {
	var (
		val   string
		found bool
	)
	if s.attempt(ctx, "get", func(ctx context.Context) error {
		v, err := s.client.Get(ctx, key).Result()
		if err != nil {
			return err
		}
		val, found = v, true
		return nil
	}) {
		return val, found
	}
	return s.fallback.Get(ctx, key)
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if s.attempt(ctx, "set", func(ctx context.Context) error {
		return s.client.Set(ctx, key, value, expiry(ttl)).Err()
	}) {
		return
	}
	s.fallback.Set(ctx, key, value, ttl)
}

func (s *Store) Incr(ctx context.Context, key string) int64 {
	var n int64
	if s.attempt(ctx, "incr", func(ctx context.Context) (err error) {
		n, err = s.client.Incr(ctx, key).Result()
		return err
	}) {
		return n
	}
	return s.fallback.Incr(ctx, key)
}

func (s *Store) TTL(ctx context.Context, key string) int64 {
	var secs int64
	if s.attempt(ctx, "ttl", func(ctx context.Context) error {
		d, err := s.client.TTL(ctx, key).Result()
		if err != nil {
			return err
		}
		if d < 0 {
			secs = -1
			return nil
		}
		secs = int64(d / time.Second)
		return nil
	}) {
		return secs
	}
	return s.fallback.TTL(ctx, key)
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) bool {
	var ok bool
	if s.attempt(ctx, "expire", func(ctx context.Context) (err error) {
		ok, err = s.client.PExpire(ctx, key, ttl).Result()
		return err
	}) {
		return ok
	}
	return s.fallback.Expire(ctx, key, ttl)
}

func (s *Store) Del(ctx context.Context, keys ...string) int64 {
	if len(keys) == 0 {
		return 0
	}
	var n int64
	if s.attempt(ctx, "del", func(ctx context.Context) (err error) {
		n, err = s.client.Del(ctx, keys...).Result()
		return err
	}) {
		return n
	}
	return s.fallback.Del(ctx, keys...)
}

// Keys walks the keyspace with SCAN rather than KEYS so a large keyspace
// does not block the server.
func (s *Store) Keys(ctx context.Context, pattern string) []string {
	var keys []string
	if s.attempt(ctx, "keys", func(ctx context.Context) error {
		prefix, wildcard := strings.CutSuffix(pattern, "*")
		if !wildcard {
			n, err := s.client.Exists(ctx, pattern).Result()
			if err != nil {
				return err
			}
			keys = []string{}
			if n > 0 {
				keys = append(keys, pattern)
			}
			return nil
		}

		match := escapeGlob(prefix) + "*"
		seen := make(map[string]struct{})
		var cursor uint64
		for {
			batch, next, err := s.client.Scan(ctx, cursor, match, scanBatch).Result()
			if err != nil {
				return err
			}
			for _, k := range batch {
				seen[k] = struct{}{}
			}
			if next == 0 {
				break
			}
			cursor = next
		}
		keys = make([]string, 0, len(seen))
		for k := range seen {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return nil
	}) {
		return keys
	}
	return s.fallback.Keys(ctx, pattern)
}

func (s *Store) HGet(ctx context.Context, key, field string) (string, bool) {
	var (
		val   string
		found bool
	)
	if s.attempt(ctx, "hget", func(ctx context.Context) error {
		v, err := s.client.HGet(ctx, key, field).Result()
		if err != nil {
			return err
		}
		val, found = v, true
		return nil
	}) {
		return val, found
	}
	return s.fallback.HGet(ctx, key, field)
}

func (s *Store) HSet(ctx context.Context, key string, values map[string]string) {
	if len(values) == 0 {
		return
	}
	if s.attempt(ctx, "hset", func(ctx context.Context) error {
		return s.client.HSet(ctx, key, hashArgs(values)...).Err()
	}) {
		return
	}
	s.fallback.HSet(ctx, key, values)
}

func (s *Store) HIncrBy(ctx context.Context, key, field string, incr int64) int64 {
	var n int64
	if s.attempt(ctx, "hincrby", func(ctx context.Context) (err error) {
		n, err = s.client.HIncrBy(ctx, key, field, incr).Result()
		return err
	}) {
		return n
	}
	return s.fallback.HIncrBy(ctx, key, field, incr)
}

func (s *Store) HGetAll(ctx context.Context, key string) map[string]string {
	var h map[string]string
	if s.attempt(ctx, "hgetall", func(ctx context.Context) (err error) {
		h, err = s.client.HGetAll(ctx, key).Result()
		return err
	}) {
		if h == nil {
			return map[string]string{}
		}
		return h
	}
	return s.fallback.HGetAll(ctx, key)
}

// Pipeline returns a batch executed in one MULTI/EXEC round trip. A failed
// round trip is replayed against the fallback.
func (s *Store) Pipeline() *Pipeline {
	return newPipeline(s.execPipeline)
}

func (s *Store) execPipeline(ctx context.Context, ops []op) []Result {
	var results []Result
	if s.attempt(ctx, "pipeline", func(ctx context.Context) error {
		cmds := make([]redis.Cmder, 0, len(ops))
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, o := range ops {
				cmds = append(cmds, queue(ctx, pipe, o))
			}
			return nil
		})
		// Per-command reply errors are reported in their Result; anything
		// else means the round trip itself failed.
		var replyErr redis.Error
		if err != nil && !errors.Is(err, redis.Nil) && !errors.As(err, &replyErr) {
			return err
		}
		results = fromCmds(cmds)
		return nil
	}) {
		return results
	}
	return s.fallback.execPipeline(ctx, ops)
}

func queue(ctx context.Context, pipe redis.Pipeliner, o op) redis.Cmder {
	switch o.kind {
	case opGet:
		return pipe.Get(ctx, o.key)
	case opSet:
		return pipe.Set(ctx, o.key, o.value, expiry(o.ttl))
	case opIncr:
		return pipe.Incr(ctx, o.key)
	case opDel:
		return pipe.Del(ctx, o.key)
	case opHGetAll:
		return pipe.HGetAll(ctx, o.key)
	case opHSet:
		return pipe.HSet(ctx, o.key, hashArgs(o.values)...)
	case opHIncrBy:
		return pipe.HIncrBy(ctx, o.key, o.field, o.n)
	case opPTTL:
		return pipe.PTTL(ctx, o.key)
	default:
		return pipe.PExpire(ctx, o.key, o.ttl)
	}
}

func fromCmds(cmds []redis.Cmder) []Result {
	results := make([]Result, len(cmds))
	for i, cmd := range cmds {
		switch c := cmd.(type) {
		case *redis.StringCmd:
			v, err := c.Result()
			switch {
			case errors.Is(err, redis.Nil):
				results[i] = Result{}
			case err != nil:
				results[i] = Result{Err: err}
			default:
				results[i] = Result{Val: v}
			}
		case *redis.StatusCmd:
			v, err := c.Result()
			results[i] = Result{Val: v, Err: err}
		case *redis.IntCmd:
			v, err := c.Result()
			results[i] = Result{Val: v, Err: err}
		case *redis.MapStringStringCmd:
			v, err := c.Result()
			if v == nil {
				v = map[string]string{}
			}
			results[i] = Result{Val: v, Err: err}
		case *redis.DurationCmd:
			d, err := c.Result()
			results[i] = Result{Val: pttlMillis(d), Err: err}
		case *redis.BoolCmd:
			v, err := c.Result()
			results[i] = Result{Val: v, Err: err}
		default:
			results[i] = Result{Err: cmd.Err()}
		}
	}
	return results
}

// pttlMillis converts a PTTL reply back to Redis integers. go-redis keeps
// the -1 and -2 sentinels unscaled.
func pttlMillis(d time.Duration) int64 {
	if d < 0 {
		return int64(d)
	}
	return d.Milliseconds()
}

func expiry(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl
}

func hashArgs(values map[string]string) []any {
	args := make([]any, 0, len(values)*2)
	for field, v := range values {
		args = append(args, field, v)
	}
	return args
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
