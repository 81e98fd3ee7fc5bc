package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisChallengeStore, *time.Time) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := NewRedisChallengeStore(client, testOTPConfig(), testLogger())
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	return store, &now
}

func TestRedisStoreCreateAndVerify(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	challenge, err := store.Create(ctx, "user-1", "josh@example.com", "josh")
	require.NoError(t, err)
	assert.Regexp(t, `^\d{6}$`, challenge.Code)
	assert.Equal(t, 0, challenge.Attempts)

	verified, err := store.Verify(ctx, challenge.ChallengeID, challenge.Code)
	require.NoError(t, err)
	assert.Equal(t, "user-1", verified.UserID)
	assert.Equal(t, "josh", verified.Username)
	assert.Equal(t, "josh@example.com", verified.Email)

	_, err = store.Verify(ctx, challenge.ChallengeID, challenge.Code)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestRedisStoreVerifyExpired(t *testing.T) {
	store, now := newTestRedisStore(t)
	ctx := context.Background()

	challenge, err := store.Create(ctx, "user-1", "josh@example.com", "josh")
	require.NoError(t, err)

	*now = now.Add(601 * time.Second)

	_, err = store.Verify(ctx, challenge.ChallengeID, challenge.Code)
	assert.ErrorIs(t, err, ErrChallengeExpired)

	_, err = store.Verify(ctx, challenge.ChallengeID, challenge.Code)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestRedisStoreAttemptCap(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	challenge, err := store.Create(ctx, "user-1", "josh@example.com", "josh")
	require.NoError(t, err)

	wrong := "000000"
	if challenge.Code == wrong {
		wrong = "000001"
	}

	for i := 0; i < 4; i++ {
		_, err := store.Verify(ctx, challenge.ChallengeID, wrong)
		assert.ErrorIs(t, err, ErrOTPMismatch, "attempt %d", i+1)
	}

	_, err = store.Verify(ctx, challenge.ChallengeID, wrong)
	assert.ErrorIs(t, err, ErrChallengeLocked)

	_, err = store.Verify(ctx, challenge.ChallengeID, challenge.Code)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestRedisStoreResend(t *testing.T) {
	store, now := newTestRedisStore(t)
	ctx := context.Background()

	challenge, err := store.Create(ctx, "user-1", "josh@example.com", "josh")
	require.NoError(t, err)

	wrong := "000000"
	if challenge.Code == wrong {
		wrong = "000001"
	}
	_, err = store.Verify(ctx, challenge.ChallengeID, wrong)
	require.ErrorIs(t, err, ErrOTPMismatch)

	*now = now.Add(5 * time.Minute)

	resent, err := store.Resend(ctx, challenge.ChallengeID)
	require.NoError(t, err)
	assert.Equal(t, challenge.ChallengeID, resent.ChallengeID)
	assert.Equal(t, 0, resent.Attempts)
	assert.Equal(t, now.Add(10*time.Minute), resent.ExpiresAt)

	if challenge.Code != resent.Code {
		_, err = store.Verify(ctx, challenge.ChallengeID, challenge.Code)
		assert.ErrorIs(t, err, ErrOTPMismatch)
	}

	verified, err := store.Verify(ctx, challenge.ChallengeID, resent.Code)
	require.NoError(t, err)
	assert.Equal(t, "user-1", verified.UserID)
}

func TestRedisStoreResendUnknownID(t *testing.T) {
	store, _ := newTestRedisStore(t)

	_, err := store.Resend(context.Background(), "no-such-challenge")
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}
