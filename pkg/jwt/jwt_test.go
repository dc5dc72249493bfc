package jwt

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	t.Parallel()

	svc := NewService("super-secret", time.Hour, 2*time.Hour)
	userID := uuid.New()

	pair, err := svc.GenerateTokenPair(userID, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, pair.SessionID)

	claims, err := svc.ValidateToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, pair.SessionID, claims.SessionID)

	refresh, err := svc.ValidateRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, pair.SessionID, refresh.SessionID)
}

func TestValidate_WrongTokenType(t *testing.T) {
	t.Parallel()

	svc := NewService("k", time.Hour, time.Hour)
	pair, err := svc.GenerateTokenPair(uuid.New(), "bob")
	require.NoError(t, err)

	_, err = svc.ValidateToken(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateRefreshToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_Expired(t *testing.T) {
	t.Parallel()

	svc := NewService("k", -time.Second, time.Hour)
	pair, err := svc.GenerateTokenPair(uuid.New(), "bob")
	require.NoError(t, err)

	_, err = svc.ValidateToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidate_WrongSecret(t *testing.T) {
	t.Parallel()

	pair, err := NewService("right", time.Hour, time.Hour).GenerateTokenPair(uuid.New(), "x")
	require.NoError(t, err)

	_, err = NewService("wrong", time.Hour, time.Hour).ValidateToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_Malformed(t *testing.T) {
	t.Parallel()

	_, err := NewService("k", time.Hour, time.Hour).ValidateToken("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
