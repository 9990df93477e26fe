package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/phrazzld/taskflow/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "thisisasecretkeythatis32charslong!!"

func newTestService(t *testing.T, now *time.Time) *hmacJWTService {
	t.Helper()
	svc, err := newJWTService(config.AuthConfig{JWTSecret: testSecret, TokenLifetimeMinutes: 60},
		func() time.Time { return *now })
	require.NoError(t, err)
	return svc
}

func TestNewJWTServiceRejectsShortSecret(t *testing.T) {
	t.Parallel()
	_, err := NewJWTService(config.AuthConfig{JWTSecret: "short"})
	assert.Error(t, err)
}

func TestGenerateAndValidate(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, &now)
	ctx := context.Background()

	token, err := svc.GenerateToken(ctx, "operator")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Subject)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, now.Add(time.Hour), claims.ExpiresAt.UTC())

	_, err = svc.GenerateToken(ctx, " ")
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func TestValidateTokenFailures(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, &now)
	ctx := context.Background()

	token, err := svc.GenerateToken(ctx, "operator")
	require.NoError(t, err)

	later := now.Add(2 * time.Hour)
	expired := newTestService(t, &later)
	_, err = expired.ValidateToken(ctx, token)
	assert.ErrorIs(t, err, ErrExpiredToken)

	earlier := now.Add(-time.Hour)
	early := newTestService(t, &earlier)
	_, err = early.ValidateToken(ctx, token)
	assert.ErrorIs(t, err, ErrTokenNotYetValid)

	_, err = svc.ValidateToken(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := newJWTService(config.AuthConfig{JWTSecret: "another-secret-that-is-32-chars-long!"},
		func() time.Time { return now })
	require.NoError(t, err)
	_, err = other.ValidateToken(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// a token from a different issuer is rejected
	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "someone-else",
		Subject:   "operator",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	signed, err := foreign.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = svc.ValidateToken(ctx, signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
