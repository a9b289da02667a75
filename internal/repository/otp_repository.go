package repository

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// OTPRepository stores signup verification codes in Redis with a TTL. Codes
// are single use and guarded by an attempt counter sharing the same expiry.
type OTPRepository struct {
	client *redis.Client
}

// NewOTPRepository constructs an OTP repository.
func NewOTPRepository(client *redis.Client) *OTPRepository {
	return &OTPRepository{client: client}
}

func otpKey(email string) string {
	return "otp:signup:" + email
}

func otpAttemptsKey(email string) string {
	return "otp:signup:" + email + ":attempts"
}

// Store saves the code for the email, replacing any previous one and
// resetting the attempt counter.
func (r *OTPRepository) Store(ctx context.Context, email, code string, ttl time.Duration) error {
	if err := r.client.Set(ctx, otpKey(email), code, ttl).Err(); err != nil {
		return fmt.Errorf("store otp for %s: %w", email, err)
	}
	if err := r.client.Del(ctx, otpAttemptsKey(email)).Err(); err != nil {
		return fmt.Errorf("reset otp attempts for %s: %w", email, err)
	}
	return nil
}

// Verify checks the submitted code. A match consumes the code; a mismatch
// increments the attempt counter and, past maxAttempts, invalidates the code
// entirely.
func (r *OTPRepository) Verify(ctx context.Context, email, code string, maxAttempts int) (bool, error) {
	stored, err := r.client.Get(ctx, otpKey(email)).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("load otp for %s: %w", email, err)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) == 1 {
		if err := r.client.Del(ctx, otpKey(email), otpAttemptsKey(email)).Err(); err != nil {
			return false, fmt.Errorf("consume otp for %s: %w", email, err)
		}
		return true, nil
	}

	attempts, err := r.client.Incr(ctx, otpAttemptsKey(email)).Result()
	if err != nil {
		return false, fmt.Errorf("count otp attempts for %s: %w", email, err)
	}
	if attempts == 1 {
		ttl, err := r.client.TTL(ctx, otpKey(email)).Result()
		if err == nil && ttl > 0 {
			_ = r.client.Expire(ctx, otpAttemptsKey(email), ttl).Err()
		}
	}
	if maxAttempts > 0 && attempts >= int64(maxAttempts) {
		_ = r.client.Del(ctx, otpKey(email), otpAttemptsKey(email)).Err()
	}
	return false, nil
}
