package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "github.com/khaleddesign/chantierpro-sub001/pkg/domain-errors"
)

type resetBody struct {
	Identity string `json:"identity"`
}

func (b *resetBody) Validate() error {
	if b.Identity == "" {
		return errors.New("identity is required")
	}
	return nil
}

func TestDecodeJSON(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("decodes valid body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"identity":"1.2.3.4:curl"}`))
		w := httptest.NewRecorder()
		req, ok := DecodeJSON[resetBody](ctx, w, r, logger)
		require.True(t, ok)
		assert.Equal(t, "1.2.3.4:curl", req.Identity)
	})

	t.Run("malformed json is a bad request", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"identity":`))
		w := httptest.NewRecorder()
		_, ok := DecodeJSON[resetBody](ctx, w, r, logger)
		require.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("validation failure is reported", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
		w := httptest.NewRecorder()
		_, ok := DecodeJSON[resetBody](ctx, w, r, logger)
		require.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var body map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, string(dErrors.CodeValidation), body["error"])
		assert.Equal(t, "identity is required", body["error_description"])
	})
}

func TestWriteError(t *testing.T) {
	t.Run("domain code maps to status", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeRateLimited, "slow down"))
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
	})

	t.Run("plain errors do not leak", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, errors.New("pq: relation users does not exist"))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "relation")
	})
}
