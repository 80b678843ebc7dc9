package middleware

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"commhub-backend/pkg/logger"
)

// HealthCheckFunc probes one dependency
type HealthCheckFunc func(ctx context.Context) error

const healthCheckTimeout = 2 * time.Second

// HealthCheck reports the service as healthy when every named dependency
// answers its probe. A failing probe turns the response into 503 with the
// failing dependency marked "down".
func HealthCheck(serviceName string, checks map[string]HealthCheckFunc) gin.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		status := http.StatusOK
		deps := make(gin.H, len(names))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				logger.Warn("Health check failed", zap.String("dependency", name), zap.Error(err))
				deps[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "up"
		}

		body := gin.H{"status": "healthy", "service": serviceName}
		if status != http.StatusOK {
			body["status"] = "unhealthy"
		}
		if len(deps) > 0 {
			body["dependencies"] = deps
		}
		c.JSON(status, body)
	}
}
