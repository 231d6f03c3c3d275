// Package requestcontext carries the request descriptor that the rate limiter,
// the secure logger and the security monitor consume. It is populated by the
// platform middleware and read back anywhere a context.Context is available.
package requestcontext

import (
	"context"
	"net/http"
	"strings"
)

const (
	HeaderForwardedFor = "X-Forwarded-For"
	HeaderRealIP       = "X-Real-IP"
	HeaderRequestID    = "X-Request-ID"
	HeaderUserAgent    = "User-Agent"

	// Unknown is used wherever a client attribute could not be determined.
	Unknown = "unknown"
)

// Descriptor is the minimal view of an inbound request.
type Descriptor struct {
	ForwardedFor  string
	RealIP        string
	UserAgent     string
	URL           string
	Method        string
	CorrelationID string
	UserID        string
}

// FromRequest builds a Descriptor from an http.Request. The user id is read
// from the request context, where the auth middleware puts it.
func FromRequest(r *http.Request) Descriptor {
	d := Descriptor{
		ForwardedFor:  r.Header.Get(HeaderForwardedFor),
		RealIP:        r.Header.Get(HeaderRealIP),
		UserAgent:     r.Header.Get(HeaderUserAgent),
		Method:        r.Method,
		CorrelationID: r.Header.Get(HeaderRequestID),
		UserID:        UserID(r.Context()),
	}
	if r.URL != nil {
		d.URL = r.URL.RequestURI()
	}
	if id := RequestID(r.Context()); id != "" {
		d.CorrelationID = id
	}
	return d
}

// ClientIP returns the first address of the forwarded-for chain, else the
// real-ip header, else Unknown.
func (d Descriptor) ClientIP() string {
	if d.ForwardedFor != "" {
		first, _, _ := strings.Cut(d.ForwardedFor, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(d.RealIP); ip != "" {
		return ip
	}
	return Unknown
}

// Path returns the URL without its query string.
func (d Descriptor) Path() string {
	path, _, _ := strings.Cut(d.URL, "?")
	return path
}

type (
	requestIDKey  struct{}
	userIDKey     struct{}
	descriptorKey struct{}
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithDescriptor stores a descriptor so that code without access to the
// *http.Request can still attach request context to logs and events.
func WithDescriptor(ctx context.Context, d Descriptor) context.Context {
	return context.WithValue(ctx, descriptorKey{}, d)
}

// FromContext returns the stored descriptor, with the user id refreshed from
// the context if the auth middleware ran after the descriptor was stored.
func FromContext(ctx context.Context) (Descriptor, bool) {
	d, ok := ctx.Value(descriptorKey{}).(Descriptor)
	if !ok {
		return Descriptor{}, false
	}
	if d.UserID == "" {
		d.UserID = UserID(ctx)
	}
	if d.CorrelationID == "" {
		d.CorrelationID = RequestID(ctx)
	}
	return d, true
}
