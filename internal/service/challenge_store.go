package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/Joshh0TX/JB-Fitness/internal/config"
	"github.com/Joshh0TX/JB-Fitness/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrChallengeNotFound covers never-issued, already-consumed and
	// already-locked-out challenge IDs alike.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrChallengeExpired means the record existed but its TTL had passed;
	// the record is removed as a side effect.
	ErrChallengeExpired = errors.New("challenge expired")
	// ErrOTPMismatch means the submitted code was wrong but the challenge is
	// still live and may be retried with the same ID.
	ErrOTPMismatch = errors.New("invalid otp")
	// ErrChallengeLocked means the failed attempt cap was reached; the record
	// is removed as a side effect.
	ErrChallengeLocked = errors.New("too many invalid attempts")
)

// ChallengeStore owns the lifecycle of pending login second-factor
// challenges. Verify and Resend are atomic with respect to each other for a
// given challenge ID; callers never read-modify-write records themselves.
type ChallengeStore interface {
	// Create issues a new challenge for an already password-verified user and
	// returns a copy carrying the generated code. The caller is responsible
	// for delivering the code out-of-band; it must never appear in a
	// response payload.
	Create(ctx context.Context, userID, email, username string) (*models.OtpChallenge, error)

	// Verify checks a submitted code against the stored challenge. On success
	// the record is deleted and a snapshot is returned for token minting.
	// Failure modes, in priority order: ErrChallengeNotFound,
	// ErrChallengeExpired (deletes), ErrChallengeLocked (deletes),
	// ErrOTPMismatch (increments the attempt counter).
	Verify(ctx context.Context, challengeID, code string) (*models.OtpChallenge, error)

	// Resend regenerates the code on a live challenge: new code, fresh TTL,
	// attempts reset, same ID and identity. Returns ErrChallengeNotFound if
	// the record is gone; a resend never resurrects a deleted challenge.
	Resend(ctx context.Context, challengeID string) (*models.OtpChallenge, error)
}

// GenerateOTP draws a 6-digit code uniformly from [100000, 999999].
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func codeMatches(stored, submitted string) bool {
	submitted = strings.TrimSpace(submitted)
	return subtle.ConstantTimeCompare([]byte(stored), []byte(submitted)) == 1
}

// MemoryChallengeStore keeps challenges in a process-local map guarded by a
// single mutex. Expiry is enforced lazily on Verify; there is no background
// sweeper.
type MemoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]*models.OtpChallenge
	cfg        *config.OTPConfig
	logger     *logrus.Logger
	now        func() time.Time
}

func NewMemoryChallengeStore(cfg *config.OTPConfig, logger *logrus.Logger) *MemoryChallengeStore {
	return &MemoryChallengeStore{
		challenges: make(map[string]*models.OtpChallenge),
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *MemoryChallengeStore) Create(ctx context.Context, userID, email, username string) (*models.OtpChallenge, error) {
	code, err := GenerateOTP()
	if err != nil {
		return nil, err
	}

	challengeID := uuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.challenges[challengeID]; exists {
		// A random 128-bit collision means a broken generator; fail closed
		// rather than overwrite a live challenge.
		s.logger.WithField("challenge_id", challengeID).Error("Challenge ID collision")
		return nil, fmt.Errorf("challenge ID collision")
	}

	challenge := &models.OtpChallenge{
		ChallengeID: challengeID,
		UserID:      userID,
		Username:    username,
		Email:       email,
		Code:        code,
		ExpiresAt:   s.now().Add(s.cfg.TTL),
		Attempts:    0,
	}
	s.challenges[challengeID] = challenge

	copied := *challenge
	return &copied, nil
}

func (s *MemoryChallengeStore) Verify(ctx context.Context, challengeID, code string) (*models.OtpChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.challenges[challengeID]
	if !ok {
		return nil, ErrChallengeNotFound
	}

	if s.now().After(challenge.ExpiresAt) {
		delete(s.challenges, challengeID)
		return nil, ErrChallengeExpired
	}

	if !codeMatches(challenge.Code, code) {
		challenge.Attempts++
		if challenge.Attempts >= s.cfg.MaxAttempts {
			delete(s.challenges, challengeID)
			return nil, ErrChallengeLocked
		}
		return nil, ErrOTPMismatch
	}

	// Single-use: the record is gone before the caller mints a token.
	delete(s.challenges, challengeID)

	copied := *challenge
	return &copied, nil
}

func (s *MemoryChallengeStore) Resend(ctx context.Context, challengeID string) (*models.OtpChallenge, error) {
	code, err := GenerateOTP()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.challenges[challengeID]
	if !ok {
		return nil, ErrChallengeNotFound
	}

	challenge.Code = code
	challenge.ExpiresAt = s.now().Add(s.cfg.TTL)
	challenge.Attempts = 0

	copied := *challenge
	return &copied, nil
}
