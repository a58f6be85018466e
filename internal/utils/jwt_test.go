package utils

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewTokenManager("secret")
	userID := uuid.New()

	token, err := m.GenerateToken(userID, "a@example.com", true, time.Minute)
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "a@example.com", claims.Email)
	assert.True(t, claims.IsAdmin)
}

func TestValidateTokenRejects(t *testing.T) {
	m := NewTokenManager("secret")

	expired, err := m.GenerateToken(uuid.New(), "a@example.com", false, -time.Minute)
	require.NoError(t, err)
	_, err = m.ValidateToken(expired)
	assert.Error(t, err)

	foreign, err := NewTokenManager("other").GenerateToken(uuid.New(), "a@example.com", false, time.Minute)
	require.NoError(t, err)
	_, err = m.ValidateToken(foreign)
	assert.Error(t, err)

	noUser, err := m.GenerateToken(uuid.Nil, "a@example.com", false, time.Minute)
	require.NoError(t, err)
	_, err = m.ValidateToken(noUser)
	assert.Error(t, err)

	_, err = m.ValidateToken("garbage")
	assert.Error(t, err)
}
