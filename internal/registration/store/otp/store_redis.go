package otp

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"udyam/internal/registration/models"
	"udyam/pkg/platform/sentinel"
)

const challengeKeyPrefix = "otp:challenge:"

// incrementScript bumps the attempt counter only while the challenge exists,
// so a late failure cannot resurrect an expired key without a TTL.
var incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
return redis.call('HINCRBY', KEYS[1], 'attempts', 1)
`)

// Redis stores each challenge as a hash that expires with the challenge.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func challengeKey(aadhaarNumber string) string {
	return challengeKeyPrefix + aadhaarNumber
}

func (s *Redis) Save(ctx context.Context, challenge models.OTPChallenge) error {
	key := challengeKey(challenge.AadhaarNumber)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"code_hash", challenge.CodeHash,
			"entrepreneur_name", challenge.EntrepreneurName,
			"attempts", challenge.Attempts,
			"expires_at", challenge.ExpiresAt.UnixMilli(),
			"created_at", challenge.CreatedAt.UnixMilli(),
		)
		pipe.PExpireAt(ctx, key, challenge.ExpiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save otp challenge: %w", err)
	}
	return nil
}

func (s *Redis) Find(ctx context.Context, aadhaarNumber string) (*models.OTPChallenge, error) {
	fields, err := s.client.HGetAll(ctx, challengeKey(aadhaarNumber)).Result()
	if err != nil {
		return nil, fmt.Errorf("load otp challenge: %w", err)
	}
	if len(fields) == 0 {
		return nil, sentinel.ErrNotFound
	}

	attempts, err := strconv.Atoi(fields["attempts"])
	if err != nil {
		return nil, fmt.Errorf("decode otp attempts: %w", err)
	}
	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode otp expiry: %w", err)
	}
	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode otp creation time: %w", err)
	}
	return &models.OTPChallenge{
		AadhaarNumber:    aadhaarNumber,
		EntrepreneurName: fields["entrepreneur_name"],
		CodeHash:         fields["code_hash"],
		Attempts:         attempts,
		ExpiresAt:        time.UnixMilli(expiresAt),
		CreatedAt:        time.UnixMilli(createdAt),
	}, nil
}

func (s *Redis) IncrementAttempts(ctx context.Context, aadhaarNumber string) (int, error) {
	n, err := incrementScript.Run(ctx, s.client, []string{challengeKey(aadhaarNumber)}).Int()
	if err != nil {
		return 0, fmt.Errorf("increment otp attempts: %w", err)
	}
	if n < 0 {
		return 0, sentinel.ErrNotFound
	}
	return n, nil
}

func (s *Redis) Delete(ctx context.Context, aadhaarNumber string) error {
	if err := s.client.Del(ctx, challengeKey(aadhaarNumber)).Err(); err != nil {
		return fmt.Errorf("delete otp challenge: %w", err)
	}
	return nil
}
