package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"commhub-backend/pkg/errors"
	"commhub-backend/pkg/logger"
	"commhub-backend/pkg/response"
)

// RateLimiter implements a fixed-window Redis rate limit
type RateLimiter struct {
	redisClient *redis.Client
	name        string
	requests    int
	window      time.Duration
}

// NewRateLimiter allows requests per window for each caller of the routes
// it guards. name separates the counters of different route groups.
func NewRateLimiter(redisClient *redis.Client, name string, requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		name:        name,
		requests:    requests,
		window:      window,
	}
}

// Middleware returns a Gin middleware for rate limiting
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := "ip:" + c.ClientIP()
		if id, ok := CurrentUserID(c); ok {
			identifier = "user:" + id.String()
		}

		count, ttl, err := rl.hit(c.Request.Context(), identifier)
		if err != nil {
			// fail open while Redis is unavailable
			logger.Warn("Rate limit check failed", zap.String("limiter", rl.name), zap.Error(err))
			c.Next()
			return
		}

		remaining := rl.requests - int(count)
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))

		if int(count) > rl.requests {
			c.Header("Retry-After", strconv.Itoa(int(ttl.Seconds())+1))
			response.FromError(c, errors.RateLimitedError())
			c.Abort()
			return
		}

		c.Next()
	}
}

// hit counts one request and returns the count and time left in the window
func (rl *RateLimiter) hit(ctx context.Context, identifier string) (int64, time.Duration, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", rl.name, identifier)

	pipe := rl.redisClient.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, rl.window)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("failed to count request: %w", err)
	}

	left := ttl.Val()
	if left < 0 {
		left = rl.window
	}
	return incr.Val(), left, nil
}
