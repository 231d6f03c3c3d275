package jwttoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "github.com/khaleddesign/chantierpro-sub001/pkg/domain-errors"
)

const (
	testKey      = "test-signing-key"
	testIssuer   = "chantierpro-auth"
	testAudience = "chantierpro-api"
)

func newService(now time.Time) *JWTService {
	s := NewJWTService(testKey, testIssuer, testAudience, time.Hour)
	s.now = func() time.Time { return now }
	return s
}

func Test_GenerateAndValidate(t *testing.T) {
	now := time.Now()
	s := newService(now)

	token, err := s.GenerateAccessToken("user-1", "ADMIN")
	require.NoError(t, err)

	claims, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "ADMIN", claims.Role)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, now.Add(time.Hour), claims.ExpiresAt.Time, time.Second)

	adapted, err := NewJWTServiceAdapter(s).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", adapted.UserID)
	assert.Equal(t, claims.ID, adapted.JTI)
}

func Test_GenerateRequiresUser(t *testing.T) {
	_, err := newService(time.Now()).GenerateAccessToken("", "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func Test_ValidateToken_Rejections(t *testing.T) {
	now := time.Now()
	s := newService(now)
	token, err := s.GenerateAccessToken("user-1", "")
	require.NoError(t, err)

	t.Run("garbage", func(t *testing.T) {
		_, err := s.ValidateToken("invalid-token-string")
		require.ErrorContains(t, err, "invalid token")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("empty", func(t *testing.T) {
		_, err := s.ValidateToken("")
		require.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		later := newService(now.Add(2 * time.Hour))
		_, err := later.ValidateToken(token)
		require.ErrorContains(t, err, "token expired")
	})

	t.Run("wrong key", func(t *testing.T) {
		other := NewJWTService("another-key", testIssuer, testAudience, time.Hour)
		_, err := other.ValidateToken(token)
		require.ErrorContains(t, err, "invalid token")
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewJWTService(testKey, "someone-else", testAudience, time.Hour)
		_, err := other.ValidateToken(token)
		require.Error(t, err)
	})

	t.Run("other signing method", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, AccessTokenClaims{
			UserID: "user-1",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    testIssuer,
				Audience:  []string{testAudience},
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		})
		raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = s.ValidateToken(raw)
		require.ErrorContains(t, err, "invalid token")
	})
}
