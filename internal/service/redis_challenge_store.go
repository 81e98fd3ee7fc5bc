package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Joshh0TX/JB-Fitness/internal/config"
	"github.com/Joshh0TX/JB-Fitness/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const challengeKeyPrefix = "login:otp:"

// RedisChallengeStore is a ChallengeStore backed by Redis, for deployments
// where login traffic is spread across instances. Records are JSON values
// with a native TTL; attempt increments run inside WATCH transactions so two
// concurrent wrong submissions cannot both observe the same counter.
type RedisChallengeStore struct {
	client *redis.Client
	cfg    *config.OTPConfig
	logger *logrus.Logger
	now    func() time.Time
}

func NewRedisChallengeStore(client *redis.Client, cfg *config.OTPConfig, logger *logrus.Logger) *RedisChallengeStore {
	return &RedisChallengeStore{
		client: client,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func challengeKey(challengeID string) string {
	return challengeKeyPrefix + challengeID
}

func (s *RedisChallengeStore) Create(ctx context.Context, userID, email, username string) (*models.OtpChallenge, error) {
	code, err := GenerateOTP()
	if err != nil {
		return nil, err
	}

	challenge := &models.OtpChallenge{
		ChallengeID: uuid.New().String(),
		UserID:      userID,
		Username:    username,
		Email:       email,
		Code:        code,
		ExpiresAt:   s.now().Add(s.cfg.TTL),
		Attempts:    0,
	}

	dataJSON, err := json.Marshal(challenge)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal challenge: %w", err)
	}

	// SetNX fails closed on the astronomically-unlikely ID collision instead
	// of overwriting a live challenge.
	ok, err := s.client.SetNX(ctx, challengeKey(challenge.ChallengeID), dataJSON, s.cfg.TTL).Result()
	if err != nil {
		s.logger.WithError(err).Error("Failed to store challenge in Redis")
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}
	if !ok {
		s.logger.WithField("challenge_id", challenge.ChallengeID).Error("Challenge ID collision")
		return nil, fmt.Errorf("challenge ID collision")
	}

	return challenge, nil
}

func (s *RedisChallengeStore) Verify(ctx context.Context, challengeID, code string) (*models.OtpChallenge, error) {
	const maxRetries = 4
	key := challengeKey(challengeID)

	for i := 0; i < maxRetries; i++ {
		var verified *models.OtpChallenge
		var outcome error

		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			dataJSON, err := tx.Get(ctx, key).Result()
			if err != nil {
				return err
			}

			var challenge models.OtpChallenge
			if err := json.Unmarshal([]byte(dataJSON), &challenge); err != nil {
				return fmt.Errorf("failed to unmarshal challenge: %w", err)
			}

			if s.now().After(challenge.ExpiresAt) {
				outcome = ErrChallengeExpired
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			if !codeMatches(challenge.Code, code) {
				challenge.Attempts++
				if challenge.Attempts >= s.cfg.MaxAttempts {
					outcome = ErrChallengeLocked
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					return err
				}

				outcome = ErrOTPMismatch
				updated, err := json.Marshal(&challenge)
				if err != nil {
					return fmt.Errorf("failed to marshal challenge: %w", err)
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, time.Until(challenge.ExpiresAt))
					return nil
				})
				return err
			}

			verified = &challenge
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, redis.Nil) {
			return nil, ErrChallengeNotFound
		}
		if err != nil {
			s.logger.WithError(err).Error("Failed to verify challenge in Redis")
			return nil, fmt.Errorf("failed to verify challenge: %w", err)
		}
		if outcome != nil {
			return nil, outcome
		}
		return verified, nil
	}

	return nil, ErrChallengeNotFound
}

func (s *RedisChallengeStore) Resend(ctx context.Context, challengeID string) (*models.OtpChallenge, error) {
	code, err := GenerateOTP()
	if err != nil {
		return nil, err
	}

	const maxRetries = 4
	key := challengeKey(challengeID)

	for i := 0; i < maxRetries; i++ {
		var updated *models.OtpChallenge

		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			dataJSON, err := tx.Get(ctx, key).Result()
			if err != nil {
				return err
			}

			var challenge models.OtpChallenge
			if err := json.Unmarshal([]byte(dataJSON), &challenge); err != nil {
				return fmt.Errorf("failed to unmarshal challenge: %w", err)
			}

			challenge.Code = code
			challenge.ExpiresAt = s.now().Add(s.cfg.TTL)
			challenge.Attempts = 0

			encoded, err := json.Marshal(&challenge)
			if err != nil {
				return fmt.Errorf("failed to marshal challenge: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, s.cfg.TTL)
				return nil
			})
			if err != nil {
				return err
			}

			updated = &challenge
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, redis.Nil) {
			return nil, ErrChallengeNotFound
		}
		if err != nil {
			s.logger.WithError(err).Error("Failed to regenerate challenge in Redis")
			return nil, fmt.Errorf("failed to regenerate challenge: %w", err)
		}
		return updated, nil
	}

	return nil, ErrChallengeNotFound
}
