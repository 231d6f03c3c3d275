package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/khaleddesign/chantierpro-sub001/internal/platform/privacy"
	"github.com/khaleddesign/chantierpro-sub001/internal/ratelimit/config"
	"github.com/khaleddesign/chantierpro-sub001/internal/ratelimit/models"
	"github.com/khaleddesign/chantierpro-sub001/pkg/platform/httputil"
	"github.com/khaleddesign/chantierpro-sub001/pkg/requestcontext"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

type RateLimiter interface {
	CheckLimit(ctx context.Context, identity string, category models.Category) (*models.Result, error)
	Limit(category models.Category) config.Limit
}

// Reporter receives every denial. The security monitor implements it.
type Reporter interface {
	LogRateLimitExceeded(ctx context.Context, req requestcontext.Descriptor, category string, limit int)
}

type Middleware struct {
	limiter  RateLimiter
	reporter Reporter
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Middleware)

func WithReporter(r Reporter) Option {
	return func(m *Middleware) {
		m.reporter = r
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Middleware) {
		m.now = now
	}
}

func New(limiter RateLimiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Denial is a ready-to-send 429 response.
type Denial struct {
	Result *models.Result
	Body   models.ExceededResponse
}

// Write sends the denial with its rate limit headers.
func (d *Denial) Write(w http.ResponseWriter) {
	setRateLimitHeaders(w, d.Result)
	w.Header().Set(HeaderRetryAfter, strconv.Itoa(d.Body.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, d.Body)
}

// Check counts the request against category. It returns nil when the
// request may proceed, including when the limiter itself fails.
func (m *Middleware) Check(r *http.Request, category models.Category) *Denial {
	_, denial := m.evaluate(r, category)
	return denial
}

// Wrap decorates next with the limit of category. Allowed responses carry
// the X-RateLimit-* headers as well. Wrap panics on an unknown category.
func (m *Middleware) Wrap(category models.Category, next http.Handler) http.Handler {
	mustBeValid(category)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result, denial := m.evaluate(r, category)
		if denial != nil {
			denial.Write(w)
			return
		}
		setRateLimitHeaders(w, result)
		next.ServeHTTP(w, r)
	})
}

// RateLimit is Wrap in chi middleware form.
func (m *Middleware) RateLimit(category models.Category) func(http.Handler) http.Handler {
	mustBeValid(category)
	return func(next http.Handler) http.Handler {
		return m.Wrap(category, next)
	}
}

// Auto is RateLimit with the category picked per request by
// models.CategorizeRequest.
func (m *Middleware) Auto() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			category := models.CategorizeRequest(r.Method, r.URL.Path)
			result, denial := m.evaluate(r, category)
			if denial != nil {
				denial.Write(w)
				return
			}
			setRateLimitHeaders(w, result)
			next.ServeHTTP(w, r)
		})
	}
}

func (m *Middleware) evaluate(r *http.Request, category models.Category) (*models.Result, *Denial) {
	ctx := r.Context()
	desc, ok := requestcontext.FromContext(ctx)
	if !ok {
		desc = requestcontext.FromRequest(r)
	}
	identity := models.IdentityFromDescriptor(desc)

	result, err := m.limiter.CheckLimit(ctx, identity, category)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to check rate limit",
			"error", err,
			"category", category,
			"ip_prefix", privacy.AnonymizeIP(desc.ClientIP()),
		)
		return nil, nil
	}
	if result.Allowed {
		return result, nil
	}

	if m.reporter != nil {
		m.reporter.LogRateLimitExceeded(ctx, desc, string(category), result.Limit)
	}
	return result, &Denial{
		Result: result,
		Body: models.ExceededResponse{
			Error:      m.limiter.Limit(category).Message,
			RetryAfter: result.RetryAfter(m.now()),
			Type:       models.ExceededType,
		},
	}
}

func setRateLimitHeaders(w http.ResponseWriter, result *models.Result) {
	if result == nil {
		return
	}
	w.Header().Set(HeaderLimit, strconv.Itoa(result.Limit))
	w.Header().Set(HeaderRemaining, strconv.Itoa(result.Remaining))
	w.Header().Set(HeaderReset, strconv.FormatInt(result.ResetTime.Unix(), 10))
}

func mustBeValid(category models.Category) {
	if _, err := models.ParseCategory(string(category)); err != nil {
		panic(err)
	}
}
