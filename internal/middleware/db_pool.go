package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"commhub-backend/pkg/errors"
	"commhub-backend/pkg/logger"
	"commhub-backend/pkg/response"
)

// defaultPoolThreshold is the share of acquired connections above which
// new requests are shed
const defaultPoolThreshold = 0.9

// DBPoolLimiter sheds load before the CockroachDB pool is exhausted
type DBPoolLimiter struct {
	pool      *pgxpool.Pool
	threshold float64
}

// NewDBPoolLimiter creates a new database pool limiter; threshold <= 0 uses 0.9
func NewDBPoolLimiter(pool *pgxpool.Pool, threshold float64) *DBPoolLimiter {
	if threshold <= 0 || threshold > 1 {
		threshold = defaultPoolThreshold
	}
	return &DBPoolLimiter{pool: pool, threshold: threshold}
}

// Usage returns acquired connections as a share of the pool size
func (l *DBPoolLimiter) Usage() float64 {
	stat := l.pool.Stat()
	if stat.MaxConns() == 0 {
		return 0
	}
	return float64(stat.AcquiredConns()) / float64(stat.MaxConns())
}

// Middleware rejects requests with 503 while the pool is saturated
func (l *DBPoolLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		usage := l.Usage()
		if usage >= l.threshold {
			stat := l.pool.Stat()
			logger.Warn("Database connection pool saturated",
				zap.Int32("max_conns", stat.MaxConns()),
				zap.Int32("acquired_conns", stat.AcquiredConns()),
				zap.Float64("usage", usage))
			c.Header("Retry-After", "1")
			response.FromError(c, errors.ServiceUnavailableError("Service temporarily unavailable"))
			c.Abort()
			return
		}
		c.Next()
	}
}
