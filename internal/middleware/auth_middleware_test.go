package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Joshh0TX/JB-Fitness/internal/config"
	"github.com/Joshh0TX/JB-Fitness/internal/models"
	"github.com/Joshh0TX/JB-Fitness/internal/service"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMiddleware(t *testing.T) (*AuthMiddleware, *service.JWTService) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	jwtService, err := service.NewJWTService(&config.JWTConfig{
		SecretKey: "test-secret-key-that-is-long-enough!",
		Expiry:    time.Hour,
	}, logger)
	require.NoError(t, err)

	return NewAuthMiddleware(jwtService, logger), jwtService
}

func TestRequireAuthAcceptsValidToken(t *testing.T) {
	m, jwtService := newTestMiddleware(t)

	token, err := jwtService.IssueSessionToken(&models.User{
		ID:       "user-1",
		Username: "josh",
		Email:    "josh@example.com",
	})
	require.NoError(t, err)

	var gotUserID, gotEmail string
	handler := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = r.Context().Value(UserIDContextKey).(string)
		gotEmail, _ = r.Context().Value(EmailContextKey).(string)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", gotUserID)
	assert.Equal(t, "josh@example.com", gotEmail)
}

func TestRequireAuthRejections(t *testing.T) {
	m, _ := newTestMiddleware(t)

	handler := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"malformed header", "Bearer"},
		{"wrong scheme", "Basic abc123"},
		{"garbage token", "Bearer not.a.token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}
