package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "commhub-backend/pkg/errors"
	"commhub-backend/pkg/logger"
	"commhub-backend/pkg/response"
)

// Timeout bounds the request context. Handlers pass the context down to
// CockroachDB, Cassandra and Redis, so a slow store aborts the request
// instead of holding a connection; if nothing was written yet the client
// gets 504.
func Timeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()

		c.Next()

		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return
		}

		logger.Warn("Request timed out",
			zap.Duration("timeout", timeout),
			zap.Duration("duration", time.Since(start)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path))

		if !c.Writer.Written() {
			response.FromError(c, apperrors.TimeoutError())
			c.Abort()
		}
	}
}
