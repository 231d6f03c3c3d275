package models

import (
	"math"
	"time"

	dErrors "github.com/khaleddesign/chantierpro-sub001/pkg/domain-errors"
)

// Category groups endpoints that share one request budget.
type Category string

const (
	// CategoryAuth: login, password reset (3 req/15min)
	CategoryAuth Category = "auth"
	// CategoryUpload: document and photo uploads (10 req/min)
	CategoryUpload Category = "upload"
	// CategoryRead: read-only API calls (100 req/min)
	CategoryRead Category = "read"
	// CategoryWrite: mutations (20 req/min)
	CategoryWrite Category = "write"
	// CategoryFinancial: quotes, invoices, payments (5 req/min)
	CategoryFinancial Category = "financial"
	// CategoryDefault: anything unclassified (60 req/min)
	CategoryDefault Category = "default"
)

// Categories lists every category in a stable order.
func Categories() []Category {
	return []Category{
		CategoryAuth,
		CategoryUpload,
		CategoryRead,
		CategoryWrite,
		CategoryFinancial,
		CategoryDefault,
	}
}

func (c Category) IsValid() bool {
	switch c {
	case CategoryAuth, CategoryUpload, CategoryRead, CategoryWrite, CategoryFinancial, CategoryDefault:
		return true
	}
	return false
}

func (c Category) String() string {
	return string(c)
}

// ParseCategory validates a category name. An unknown name is a programming
// error, not a client input problem.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "unknown rate limit category: "+s)
	}
	return c, nil
}

// Result is the outcome of a single limit check.
type Result struct {
	Allowed       bool      `json:"allowed"`
	Limit         int       `json:"limit"`
	Remaining     int       `json:"remaining"`
	ResetTime     time.Time `json:"reset_time"`
	TotalRequests int       `json:"total_requests"`
}

// ResetMillis returns the window end as epoch milliseconds.
func (r *Result) ResetMillis() int64 {
	return r.ResetTime.UnixMilli()
}

// RetryAfter returns whole seconds until the window resets, at least 1.
func (r *Result) RetryAfter(now time.Time) int {
	secs := int(math.Ceil(r.ResetTime.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Usage is the current counter state for one identity and category.
type Usage struct {
	Identity  string    `json:"identity"`
	Category  Category  `json:"category"`
	Count     int       `json:"count"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"reset_time,omitzero"`
	Active    bool      `json:"active"`
}

// IdentityUsage is one entry of the most-active ranking.
type IdentityUsage struct {
	Identity string   `json:"identity"`
	Category Category `json:"category"`
	Count    int      `json:"count"`
}

// Stats summarises active counters.
type Stats struct {
	ActiveByCategory map[Category]int `json:"active_by_category"`
	TotalActive      int              `json:"total_active"`
	TopIdentities    []IdentityUsage  `json:"top_identities"`
	UsingFallback    bool             `json:"using_fallback"`
	GeneratedAt      time.Time        `json:"generated_at"`
}
