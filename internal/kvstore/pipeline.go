package kvstore

import (
	"context"
	"time"
)

type opKind int

const (
	opGet opKind = iota
	opSet
	opIncr
	opDel
	opHGetAll
	opHSet
	opHIncrBy
	opPTTL
	opPExpire
)

func (k opKind) String() string {
	switch k {
	case opGet:
		return "get"
	case opSet:
		return "set"
	case opIncr:
		return "incr"
	case opDel:
		return "del"
	case opHGetAll:
		return "hgetall"
	case opHSet:
		return "hset"
	case opHIncrBy:
		return "hincrby"
	case opPTTL:
		return "pttl"
	case opPExpire:
		return "pexpire"
	default:
		return "unknown"
	}
}

type op struct {
	kind   opKind
	key    string
	field  string
	value  string
	values map[string]string
	n      int64
	ttl    time.Duration
}

// Result is one command outcome of an executed pipeline, mirroring the
// [error, value] pairs returned by Redis clients.
//
// Val holds: string for GET (nil when missing), "OK" for SET, int64 for INCR,
// DEL, HSET, HINCRBY and PTTL, map[string]string for HGETALL and bool for
// PEXPIRE. PTTL follows Redis conventions: -2 when the key is missing, -1
// when it has no expiry, otherwise milliseconds remaining.
type Result struct {
	Err error
	Val any
}

// Int returns Val as an int64, or 0.
func (r Result) Int() int64 {
	n, _ := r.Val.(int64)
	return n
}

// StringMap returns Val as a map, or an empty map.
func (r Result) StringMap() map[string]string {
	if m, ok := r.Val.(map[string]string); ok {
		return m
	}
	return map[string]string{}
}

// Str returns Val as a string and whether it was present.
func (r Result) Str() (string, bool) {
	s, ok := r.Val.(string)
	return s, ok
}

// Pipeline batches commands for a single round trip. Redis executes the batch
// inside MULTI/EXEC; the in-process store executes it under one lock.
type Pipeline struct {
	ops  []op
	exec func(ctx context.Context, ops []op) []Result
}

func newPipeline(exec func(ctx context.Context, ops []op) []Result) *Pipeline {
	return &Pipeline{exec: exec}
}

func (p *Pipeline) Get(key string) *Pipeline {
	p.ops = append(p.ops, op{kind: opGet, key: key})
	return p
}

func (p *Pipeline) Set(key, value string, ttl time.Duration) *Pipeline {
	p.ops = append(p.ops, op{kind: opSet, key: key, value: value, ttl: ttl})
	return p
}

func (p *Pipeline) Incr(key string) *Pipeline {
	p.ops = append(p.ops, op{kind: opIncr, key: key})
	return p
}

func (p *Pipeline) Del(key string) *Pipeline {
	p.ops = append(p.ops, op{kind: opDel, key: key})
	return p
}

func (p *Pipeline) HGetAll(key string) *Pipeline {
	p.ops = append(p.ops, op{kind: opHGetAll, key: key})
	return p
}

func (p *Pipeline) HSet(key string, values map[string]string) *Pipeline {
	p.ops = append(p.ops, op{kind: opHSet, key: key, values: values})
	return p
}

func (p *Pipeline) HIncrBy(key, field string, incr int64) *Pipeline {
	p.ops = append(p.ops, op{kind: opHIncrBy, key: key, field: field, n: incr})
	return p
}

func (p *Pipeline) PTTL(key string) *Pipeline {
	p.ops = append(p.ops, op{kind: opPTTL, key: key})
	return p
}

func (p *Pipeline) PExpire(key string, ttl time.Duration) *Pipeline {
	p.ops = append(p.ops, op{kind: opPExpire, key: key, ttl: ttl})
	return p
}

// Len returns the number of queued commands.
func (p *Pipeline) Len() int {
	return len(p.ops)
}

// Exec runs the queued commands and returns one Result per command, in order.
// The pipeline is empty afterwards and may be reused.
func (p *Pipeline) Exec(ctx context.Context) []Result {
	if len(p.ops) == 0 {
		return nil
	}
	ops := p.ops
	p.ops = nil
	return p.exec(ctx, ops)
}
