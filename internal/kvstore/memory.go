package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	errNotInteger = errors.New("ERR value is not an integer or out of range")
	errHashValue  = errors.New("ERR hash value is not an integer")
	errWrongType  = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")
)

type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Memory is the in-process implementation. It reproduces the Redis contract
// the rate limiter relies on: absolute expiry with lazy eviction, INCR
// initialising missing keys, and hashes stored as a JSON blob under one key.
// Memory is owned by a single process and never shared.
type Memory struct {
	mu   sync.Mutex
	data map[string]entry
	now  func() time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory creates an empty in-process store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		data: make(map[string]entry),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// UsingFallback is always true: Memory is the fallback.
func (m *Memory) UsingFallback() bool {
	return true
}

func (m *Memory) Get(_ context.Context, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(key)
	return e.value, ok
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(key, value, ttl)
}

func (m *Memory) Incr(_ context.Context, key string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, _ := m.incr(key)
	return n
}

func (m *Memory) TTL(_ context.Context, key string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms := m.pttl(key)
	if ms < 0 {
		return -1
	}
	// Same rounding as the Redis TTL command.
	return (ms + 500) / 1000
}

func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expire(key, ttl)
}

func (m *Memory) Del(_ context.Context, keys ...string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for _, key := range keys {
		removed += m.del(key)
	}
	return removed
}

func (m *Memory) Keys(_ context.Context, pattern string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix, wildcard := strings.CutSuffix(pattern, "*")
	if !wildcard {
		if _, ok := m.lookup(pattern); ok {
			return []string{pattern}
		}
		return []string{}
	}

	now := m.now()
	keys := make([]string, 0)
	for key, e := range m.data {
		if e.expired(now) {
			delete(m.data, key)
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func (m *Memory) HGet(_ context.Context, key, field string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, err := m.hash(key)
	if err != nil {
		return "", false
	}
	v, ok := h[field]
	return v, ok
}

func (m *Memory) HSet(_ context.Context, key string, values map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, _ = m.hset(key, values)
}

func (m *Memory) HIncrBy(_ context.Context, key, field string, incr int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, _ := m.hincrby(key, field, incr)
	return n
}

func (m *Memory) HGetAll(_ context.Context, key string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, err := m.hash(key)
	if err != nil {
		return map[string]string{}
	}
	return h
}

// Pipeline returns a batch executed atomically under the store lock.
func (m *Memory) Pipeline() *Pipeline {
	return newPipeline(m.execPipeline)
}

// Sweep evicts every expired entry and returns how many were removed. Reads
// evict lazily; Sweep bounds memory for keys that are never read again.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for key, e := range m.data {
		if e.expired(now) {
			delete(m.data, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

func (m *Memory) execPipeline(_ context.Context, ops []op) []Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]Result, len(ops))
	for i, o := range ops {
		results[i] = m.apply(o)
	}
	return results
}

func (m *Memory) apply(o op) Result {
	switch o.kind {
	case opGet:
		if e, ok := m.lookup(o.key); ok {
			return Result{Val: e.value}
		}
		return Result{}
	case opSet:
		m.set(o.key, o.value, o.ttl)
		return Result{Val: "OK"}
	case opIncr:
		n, err := m.incr(o.key)
		return Result{Val: n, Err: err}
	case opDel:
		return Result{Val: m.del(o.key)}
	case opHGetAll:
		h, err := m.hash(o.key)
		if err != nil {
			return Result{Val: map[string]string{}, Err: err}
		}
		return Result{Val: h}
	case opHSet:
		n, err := m.hset(o.key, o.values)
		return Result{Val: n, Err: err}
	case opHIncrBy:
		n, err := m.hincrby(o.key, o.field, o.n)
		return Result{Val: n, Err: err}
	case opPTTL:
		return Result{Val: m.pttl(o.key)}
	case opPExpire:
		return Result{Val: m.expire(o.key, o.ttl)}
	default:
		return Result{Err: errors.New("ERR unknown command")}
	}
}

// The helpers below expect m.mu to be held.

func (m *Memory) lookup(key string) (entry, bool) {
	e, ok := m.data[key]
	if !ok {
		return entry{}, false
	}
	if e.expired(m.now()) {
		delete(m.data, key)
		return entry{}, false
	}
	return e, true
}

func (m *Memory) set(key, value string, ttl time.Duration) {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.data[key] = e
}

func (m *Memory) incr(key string) (int64, error) {
	e, ok := m.lookup(key)
	if !ok {
		m.data[key] = entry{value: "1"}
		return 1, nil
	}
	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		return 0, errNotInteger
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	m.data[key] = e
	return n, nil
}

func (m *Memory) del(key string) int64 {
	if _, ok := m.lookup(key); !ok {
		return 0
	}
	delete(m.data, key)
	return 1
}

func (m *Memory) pttl(key string) int64 {
	e, ok := m.lookup(key)
	if !ok {
		return -2
	}
	if e.expiresAt.IsZero() {
		return -1
	}
	return e.expiresAt.Sub(m.now()).Milliseconds()
}

func (m *Memory) expire(key string, ttl time.Duration) bool {
	e, ok := m.lookup(key)
	if !ok {
		return false
	}
	if ttl <= 0 {
		delete(m.data, key)
		return true
	}
	e.expiresAt = m.now().Add(ttl)
	m.data[key] = e
	return true
}

func (m *Memory) hash(key string) (map[string]string, error) {
	e, ok := m.lookup(key)
	if !ok {
		return map[string]string{}, nil
	}
	h := map[string]string{}
	if err := json.Unmarshal([]byte(e.value), &h); err != nil {
		return nil, errWrongType
	}
	return h, nil
}

// storeHash writes h back under key, keeping any existing expiry.
func (m *Memory) storeHash(key string, h map[string]string) error {
	blob, err := json.Marshal(h)
	if err != nil {
		return err
	}
	e, ok := m.lookup(key)
	if !ok {
		e = entry{}
	}
	e.value = string(blob)
	m.data[key] = e
	return nil
}

func (m *Memory) hset(key string, values map[string]string) (int64, error) {
	h, err := m.hash(key)
	if err != nil {
		return 0, err
	}
	var added int64
	for field, v := range values {
		if _, exists := h[field]; !exists {
			added++
		}
		h[field] = v
	}
	return added, m.storeHash(key, h)
}

func (m *Memory) hincrby(key, field string, incr int64) (int64, error) {
	h, err := m.hash(key)
	if err != nil {
		return 0, err
	}
	var current int64
	if raw, ok := h[field]; ok {
		current, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, errHashValue
		}
	}
	current += incr
	h[field] = strconv.FormatInt(current, 10)
	return current, m.storeHash(key, h)
}
