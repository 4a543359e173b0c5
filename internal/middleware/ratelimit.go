package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aerodrome-observer/backend/pkg/response"
)

// Allower decides whether one more request for key fits the current window.
type Allower interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimit limits requests per client IP under the given scope. Limiter
// failures let the request through.
func RateLimit(limiter Allower, scope string, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		ok, err := limiter.Allow(c.Request.Context(), scope+":"+c.ClientIP())
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.Error(err), zap.String("scope", scope))
			c.Next()
			return
		}
		if !ok {
			response.TooManyRequests(c, "too many requests, try again later")
			c.Abort()
			return
		}
		c.Next()
	}
}
