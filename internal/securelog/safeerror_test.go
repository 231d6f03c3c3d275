package securelog

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "github.com/khaleddesign/chantierpro-sub001/pkg/domain-errors"
)

func TestSafeErrorMessage(t *testing.T) {
	t.Run("development returns the raw message", func(t *testing.T) {
		err := errors.New(`pq: duplicate key value violates unique constraint "users_email_key"`)
		assert.Equal(t, err.Error(), SafeErrorMessage(err, false))
	})

	t.Run("nil error", func(t *testing.T) {
		assert.Empty(t, SafeErrorMessage(nil, true))
	})

	cases := []struct {
		name string
		err  error
		want string
	}{
		{"domain validation code", dErrors.New(dErrors.CodeInvalidInput, "siret must have 14 digits"), MessageValidation},
		{"wrapped domain code", fmt.Errorf("handler: %w", dErrors.New(dErrors.CodeForbidden, "not owner of chantier 12")), MessagePermission},
		{"validation text", errors.New("Validation failed: montant is required"), MessageValidation},
		{"auth text", errors.New("unauthorized: session expired"), MessageAuth},
		{"invalid token is an auth failure", errors.New("invalid token"), MessageAuth},
		{"missing authentication is an auth failure", errors.New("authentication required"), MessageAuth},
		{"invalid credentials", errors.New("invalid credentials for bob"), MessageAuth},
		{"permission text", errors.New("Permission denied for role OUVRIER"), MessagePermission},
		{"not found text", errors.New("devis 42 not found"), MessageNotFound},
		{"rate limit text", errors.New("rate limit exceeded for auth"), MessageRateLimit},
		{"database text", errors.New(`pq: duplicate key value violates unique constraint "users_email_key"`), MessageDatabase},
		{"upload text", errors.New("upload of plan.pdf exceeded 10MB"), MessageUpload},
		{"anything else", errors.New("panic at /srv/app/internal/billing/pdf.go:88"), MessageGeneric},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SafeErrorMessage(tc.err, true)
			assert.Equal(t, tc.want, got)
			assert.NotContains(t, got, "/srv/app")
		})
	}
}
