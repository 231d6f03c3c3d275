package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	dErrors "github.com/khaleddesign/chantierpro-sub001/pkg/domain-errors"
	"github.com/khaleddesign/chantierpro-sub001/pkg/platform/httputil"
	"github.com/khaleddesign/chantierpro-sub001/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// UnauthorizedReporter is told about every rejected credential. The security
// monitor implements it.
type UnauthorizedReporter interface {
	LogUnauthorizedAccess(ctx context.Context, req requestcontext.Descriptor, resource string)
}

// JWTClaims represents the claims we expect from the JWT validator
type JWTClaims struct {
	UserID string
	Role   string
	JTI    string
}

const bearerPrefix = "Bearer "

// OptionalAuth authenticates requests carrying a bearer token and lets
// anonymous requests through. A token that is present but invalid is
// rejected and reported.
func OptionalAuth(validator JWTValidator, reporter UnauthorizedReporter, logger *slog.Logger) func(http.Handler) http.Handler {
	return authenticate(validator, reporter, logger, false)
}

// RequireAuth is OptionalAuth that also rejects anonymous requests.
func RequireAuth(validator JWTValidator, reporter UnauthorizedReporter, logger *slog.Logger) func(http.Handler) http.Handler {
	return authenticate(validator, reporter, logger, true)
}

func authenticate(validator JWTValidator, reporter UnauthorizedReporter, logger *slog.Logger, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")

			if authHeader == "" {
				if !required {
					next.ServeHTTP(w, r)
					return
				}
				reject(w, r, reporter, logger, "missing token", "Missing or invalid Authorization header")
				return
			}

			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok || token == "" {
				reject(w, r, reporter, logger, "malformed authorization header", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				reject(w, r, reporter, logger, "invalid token", "Invalid or expired token")
				return
			}

			ctx = requestcontext.WithUserID(ctx, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request, reporter UnauthorizedReporter, logger *slog.Logger, reason, description string) {
	ctx := r.Context()
	logger.WarnContext(ctx, "unauthorized access - "+reason,
		"request_id", requestcontext.RequestID(ctx),
		"path", r.URL.Path,
	)
	if reporter != nil {
		reporter.LogUnauthorizedAccess(ctx, requestcontext.FromRequest(r), r.URL.Path)
	}
	httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, description))
}
