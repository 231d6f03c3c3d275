// Package limiter implements the fixed-window request counter.
//
// Each (identity, category) pair owns one hash in the key-value store with
// the fields count and resetTime. The key's own expiry is the window
// boundary: a missing key, or one without a positive TTL, starts a fresh
// window.
//
// Usage:
//
//	svc, _ := limiter.New(store)
//	result, _ := svc.CheckLimit(ctx, identity, models.CategoryWrite)
//	if !result.Allowed {
//	    // Return 429 Too Many Requests
//	}
//
// Window creation is best effort under concurrency: two requests that both
// observe a missing key both open the window and the counter restarts at 1.
// The increment itself is atomic, so the limit is never exceeded by more
// than the racing creators.
package limiter

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/khaleddesign/chantierpro-sub001/internal/kvstore"
	"github.com/khaleddesign/chantierpro-sub001/internal/platform/privacy"
	"github.com/khaleddesign/chantierpro-sub001/internal/ratelimit/config"
	"github.com/khaleddesign/chantierpro-sub001/internal/ratelimit/metrics"
	"github.com/khaleddesign/chantierpro-sub001/internal/ratelimit/models"
	dErrors "github.com/khaleddesign/chantierpro-sub001/pkg/domain-errors"
)

const (
	fieldCount     = "count"
	fieldResetTime = "resetTime"

	defaultTopN = 10
)

// Service enforces per-identity limits. Safe for concurrent use.
type Service struct {
	store   kvstore.KeyValueStore
	config  *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Service instance.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithConfig overrides the default category limits.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a limiter over store.
func New(store kvstore.KeyValueStore, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("key-value store is required")
	}

	svc := &Service{
		store:  store,
		config: config.DefaultConfig(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.config == nil {
		return nil, errors.New("rate limit config is required")
	}
	return svc, nil
}

// Limit returns the configured limit of a category.
func (s *Service) Limit(category models.Category) config.Limit {
	return s.config.Limit(category)
}

// CheckLimit counts one request for identity against category.
//
// A request over the limit is denied without being counted, so retrying
// while blocked never extends the block. The only error is an unknown
// category.
func (s *Service) CheckLimit(ctx context.Context, identity string, category models.Category) (*models.Result, error) {
	if !category.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown rate limit category: "+string(category))
	}

	limit := s.config.Limit(category)
	key := models.NewKey(identity, category).String()
	now := s.now()

	w := s.readWindow(ctx, key, now)
	if !w.active {
		return s.startWindow(ctx, key, category, limit, now), nil
	}

	if w.count >= limit.MaxRequests {
		s.logger.DebugContext(ctx, "rate limit exceeded",
			"identity_prefix", privacy.AnonymizeIdentity(identity),
			"category", category,
			"count", w.count,
		)
		s.recordDecision(category, false)
		return &models.Result{
			Allowed:       false,
			Limit:         limit.MaxRequests,
			Remaining:     0,
			ResetTime:     w.resetTime,
			TotalRequests: w.count,
		}, nil
	}

	count := int(s.store.HIncrBy(ctx, key, fieldCount, 1))
	if count > limit.MaxRequests {
		// Lost a race with concurrent requests between read and increment.
		s.recordDecision(category, false)
		return &models.Result{
			Allowed:       false,
			Limit:         limit.MaxRequests,
			Remaining:     0,
			ResetTime:     w.resetTime,
			TotalRequests: count,
		}, nil
	}

	s.recordDecision(category, true)
	return &models.Result{
		Allowed:       true,
		Limit:         limit.MaxRequests,
		Remaining:     limit.MaxRequests - count,
		ResetTime:     w.resetTime,
		TotalRequests: count,
	}, nil
}

func (s *Service) startWindow(ctx context.Context, key string, category models.Category, limit config.Limit, now time.Time) *models.Result {
	resetTime := now.Add(limit.Window)
	s.store.Pipeline().
		HSet(key, map[string]string{
			fieldCount:     "1",
			fieldResetTime: strconv.FormatInt(resetTime.UnixMilli(), 10),
		}).
		PExpire(key, limit.Window).
		Exec(ctx)

	if s.metrics != nil {
		s.metrics.IncrementWindowsStarted(string(category))
	}
	s.recordDecision(category, true)
	return &models.Result{
		Allowed:       true,
		Limit:         limit.MaxRequests,
		Remaining:     limit.MaxRequests - 1,
		ResetTime:     resetTime,
		TotalRequests: 1,
	}
}

type window struct {
	active    bool
	count     int
	resetTime time.Time
}

// readWindow fetches the hash and its TTL in one round trip.
func (s *Service) readWindow(ctx context.Context, key string, now time.Time) window {
	results := s.store.Pipeline().HGetAll(key).PTTL(key).Exec(ctx)
	if len(results) != 2 {
		return window{}
	}
	if results[0].Err != nil || results[1].Err != nil {
		s.logger.WarnContext(ctx, "rate limit counter unreadable, starting a new window",
			"error", errors.Join(results[0].Err, results[1].Err),
		)
		return window{}
	}

	fields := results[0].StringMap()
	pttl := results[1].Int()
	if len(fields) == 0 || pttl <= 0 {
		return window{}
	}

	count, err := strconv.Atoi(fields[fieldCount])
	if err != nil {
		return window{}
	}
	return window{
		active:    true,
		count:     count,
		resetTime: storedResetTime(fields, now, pttl),
	}
}

// storedResetTime prefers the resetTime field and derives it from the TTL
// when the field is missing or malformed.
func storedResetTime(fields map[string]string, now time.Time, pttl int64) time.Time {
	if raw, ok := fields[fieldResetTime]; ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return time.UnixMilli(ms)
		}
	}
	return now.Add(time.Duration(pttl) * time.Millisecond)
}

func (s *Service) recordDecision(category models.Category, allowed bool) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncrementDecision(string(category), allowed)
}

// Reset clears the counter of identity for category. It reports whether a
// counter existed.
func (s *Service) Reset(ctx context.Context, identity string, category models.Category) (bool, error) {
	if !category.IsValid() {
		return false, dErrors.New(dErrors.CodeInvariantViolation, "unknown rate limit category: "+string(category))
	}
	removed := s.store.Del(ctx, models.NewKey(identity, category).String())
	if s.metrics != nil {
		s.metrics.IncrementResets()
	}
	s.logger.InfoContext(ctx, "rate limit counter reset",
		"identity_prefix", privacy.AnonymizeIdentity(identity),
		"category", category,
		"existed", removed > 0,
	)
	return removed > 0, nil
}

// Usage reports the current window of identity for category without
// counting a request.
func (s *Service) Usage(ctx context.Context, identity string, category models.Category) (*models.Usage, error) {
	if !category.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown rate limit category: "+string(category))
	}
	limit := s.config.Limit(category)
	w := s.readWindow(ctx, models.NewKey(identity, category).String(), s.now())

	usage := &models.Usage{
		Identity:  identity,
		Category:  category,
		Limit:     limit.MaxRequests,
		Remaining: limit.MaxRequests,
		Active:    w.active,
	}
	if w.active {
		usage.Count = w.count
		usage.Remaining = max(limit.MaxRequests-w.count, 0)
		usage.ResetTime = w.resetTime
	}
	return usage, nil
}

// GetStats lists active counters per category and the topN identities with
// the highest counts. topN <= 0 uses a default of 10.
func (s *Service) GetStats(ctx context.Context, topN int) (*models.Stats, error) {
	if topN <= 0 {
		topN = defaultTopN
	}

	stats := &models.Stats{
		ActiveByCategory: make(map[models.Category]int, len(models.Categories())),
		TopIdentities:    []models.IdentityUsage{},
		UsingFallback:    s.store.UsingFallback(),
		GeneratedAt:      s.now(),
	}
	for _, c := range models.Categories() {
		stats.ActiveByCategory[c] = 0
	}

	var parsed []models.Key
	pipe := s.store.Pipeline()
	for _, raw := range s.store.Keys(ctx, models.ScanPrefix()) {
		key, ok := models.ParseKey(raw)
		if !ok {
			continue
		}
		parsed = append(parsed, key)
		pipe.HGetAll(raw).PTTL(raw)
	}
	if len(parsed) == 0 {
		s.setActiveCounters(0)
		return stats, nil
	}

	results := pipe.Exec(ctx)
	active := make([]models.IdentityUsage, 0, len(parsed))
	for i, key := range parsed {
		fields, pttl := results[2*i], results[2*i+1]
		if fields.Err != nil || pttl.Err != nil || pttl.Int() <= 0 {
			continue
		}
		count, err := strconv.Atoi(fields.StringMap()[fieldCount])
		if err != nil || count <= 0 {
			continue
		}
		stats.ActiveByCategory[key.Category()]++
		active = append(active, models.IdentityUsage{
			Identity: key.Identity(),
			Category: key.Category(),
			Count:    count,
		})
	}

	sort.Slice(active, func(i, j int) bool {
		if active[i].Count != active[j].Count {
			return active[i].Count > active[j].Count
		}
		if active[i].Identity != active[j].Identity {
			return active[i].Identity < active[j].Identity
		}
		return active[i].Category < active[j].Category
	})
	stats.TotalActive = len(active)
	if len(active) > topN {
		active = active[:topN]
	}
	stats.TopIdentities = active
	s.setActiveCounters(stats.TotalActive)
	return stats, nil
}

func (s *Service) setActiveCounters(n int) {
	if s.metrics != nil {
		s.metrics.SetActiveCounters(n)
	}
}
