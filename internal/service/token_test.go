package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManagerRoundTrip(t *testing.T) {
	manager := NewTokenManager("test-secret", time.Hour)
	userID := uuid.New()

	token, err := manager.Generate(userID, "admin")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	parsedID, role, err := manager.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, userID, parsedID)
	assert.Equal(t, "admin", role)
}

func TestTokenManagerExpired(t *testing.T) {
	manager := NewTokenManager("test-secret", -time.Minute)

	token, err := manager.Generate(uuid.New(), "user")
	require.NoError(t, err)

	_, _, err = manager.Parse(token)
	assert.Error(t, err)
}

func TestTokenManagerWrongSecret(t *testing.T) {
	manager := NewTokenManager("test-secret", time.Hour)
	other := NewTokenManager("other-secret", time.Hour)

	token, err := manager.Generate(uuid.New(), "user")
	require.NoError(t, err)

	_, _, err = other.Parse(token)
	assert.Error(t, err)
}

func TestTokenManagerGarbage(t *testing.T) {
	manager := NewTokenManager("test-secret", time.Hour)

	_, _, err := manager.Parse("not-a-jwt")
	assert.Error(t, err)
}
