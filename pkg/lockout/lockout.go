package lockout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"commhub-backend/pkg/constants"
)

// LockoutManager counts failed sign-ins per identifier and locks the
// identifier once the limit is reached
type LockoutManager struct {
	redisClient  *redis.Client
	maxAttempts  int
	lockDuration time.Duration
}

// NewLockoutManager creates a new lockout manager
func NewLockoutManager(redisClient *redis.Client) *LockoutManager {
	return &LockoutManager{
		redisClient:  redisClient,
		maxAttempts:  constants.MaxFailedLoginAttempts,
		lockDuration: constants.AccountLockDuration,
	}
}

func failedKey(identifier string) string {
	return "lockout:failed:" + strings.ToLower(identifier)
}

// RecordFailedAttempt counts a failure and reports whether the identifier is now locked
func (lm *LockoutManager) RecordFailedAttempt(ctx context.Context, identifier string) (bool, error) {
	key := failedKey(identifier)

	pipe := lm.redisClient.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, lm.lockDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to record failed attempt: %w", err)
	}

	return incr.Val() >= int64(lm.maxAttempts), nil
}

// CheckLockout reports whether identifier is locked and how many attempts remain
func (lm *LockoutManager) CheckLockout(ctx context.Context, identifier string) (bool, int, error) {
	count, err := lm.redisClient.Get(ctx, failedKey(identifier)).Int()
	if err != nil && err != redis.Nil {
		return false, 0, fmt.Errorf("failed to check lockout status: %w", err)
	}

	remaining := lm.maxAttempts - count
	if remaining < 0 {
		remaining = 0
	}
	return count >= lm.maxAttempts, remaining, nil
}

// ClearFailedAttempts resets the counter after a successful sign-in or an admin unlock
func (lm *LockoutManager) ClearFailedAttempts(ctx context.Context, identifier string) error {
	if err := lm.redisClient.Del(ctx, failedKey(identifier)).Err(); err != nil {
		return fmt.Errorf("failed to clear failed attempts: %w", err)
	}
	return nil
}
