package service

import (
	"testing"
	"time"

	"github.com/Joshh0TX/JB-Fitness/internal/config"
	"github.com/Joshh0TX/JB-Fitness/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJWTConfig() *config.JWTConfig {
	return &config.JWTConfig{
		SecretKey: "test-secret-key-that-is-long-enough!",
		Expiry:    24 * time.Hour,
	}
}

func TestNewJWTServiceRejectsShortSecret(t *testing.T) {
	_, err := NewJWTService(&config.JWTConfig{SecretKey: "short", Expiry: time.Hour}, testLogger())
	assert.Error(t, err)
}

func TestIssueAndVerifySessionToken(t *testing.T) {
	svc, err := NewJWTService(testJWTConfig(), testLogger())
	require.NoError(t, err)

	user := &models.User{
		ID:       "user-1",
		Username: "josh",
		Email:    "josh@example.com",
	}

	token, err := svc.IssueSessionToken(user)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "josh", claims.Username)
	assert.Equal(t, "josh@example.com", claims.Email)
	assert.Equal(t, "user-1", claims.Subject)
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	svc, err := NewJWTService(testJWTConfig(), testLogger())
	require.NoError(t, err)

	other, err := NewJWTService(&config.JWTConfig{
		SecretKey: "a-completely-different-32+byte-key!!",
		Expiry:    24 * time.Hour,
	}, testLogger())
	require.NoError(t, err)

	token, err := svc.IssueSessionToken(&models.User{ID: "user-1"})
	require.NoError(t, err)

	_, err = other.VerifyToken(token)
	assert.Error(t, err)
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	svc, err := NewJWTService(testJWTConfig(), testLogger())
	require.NoError(t, err)

	_, err = svc.VerifyToken("not.a.token")
	assert.Error(t, err)
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	svc, err := NewJWTService(&config.JWTConfig{
		SecretKey: "test-secret-key-that-is-long-enough!",
		Expiry:    -time.Minute,
	}, testLogger())
	require.NoError(t, err)

	token, err := svc.IssueSessionToken(&models.User{ID: "user-1"})
	require.NoError(t, err)

	_, err = svc.VerifyToken(token)
	assert.Error(t, err)
}
