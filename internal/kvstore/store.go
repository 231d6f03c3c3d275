// Package kvstore provides the key-value abstraction used by the rate limiter.
//
// Two implementations exist: Memory, an in-process map with expiry, and Store,
// which talks to Redis and transparently serves every call from a private
// Memory when the backend is unreachable. Neither returns errors: callers get
// the safest available answer and backend failures are logged instead.
package kvstore

import (
	"context"
	"time"
)

// KeyValueStore is the contract shared by both implementations.
//
// Keys supports only an exact key or a prefix ending in a single trailing '*'.
// TTL reports whole seconds remaining, or -1 when the key is absent or has no
// expiry.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
	Incr(ctx context.Context, key string) int64
	TTL(ctx context.Context, key string) int64
	Expire(ctx context.Context, key string, ttl time.Duration) bool
	Del(ctx context.Context, keys ...string) int64
	Keys(ctx context.Context, pattern string) []string

	HGet(ctx context.Context, key, field string) (string, bool)
	HSet(ctx context.Context, key string, values map[string]string)
	HIncrBy(ctx context.Context, key, field string, incr int64) int64
	HGetAll(ctx context.Context, key string) map[string]string

	Pipeline() *Pipeline
	UsingFallback() bool
}

var (
	_ KeyValueStore = (*Memory)(nil)
	_ KeyValueStore = (*Store)(nil)
)
