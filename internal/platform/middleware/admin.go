package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
)

const HeaderAdminToken = "X-Admin-Token"

// RequireAdminToken guards administrative routes with a shared token. An
// empty expected token rejects every request.
func RequireAdminToken(expectedToken string, reporter UnauthorizedReporter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(HeaderAdminToken)
			if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				reject(w, r, reporter, logger, "admin token mismatch", "admin token required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
