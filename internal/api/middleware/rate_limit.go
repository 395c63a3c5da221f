package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bod9dzys/BasicWFMbb/pkg/response"
)

// Limiter counts hits of key inside a window. *redis.Client implements it.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimit throttles a route per caller identity (client IP before auth).
// A nil limiter or a limiter error lets the request through.
func RateLimit(limiter Limiter, limit int, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limit <= 0 {
			c.Next()
			return
		}

		who := c.ClientIP()
		if id, ok := c.Get(identityIDKey); ok {
			who = fmt.Sprintf("id:%v", id)
		}
		key := fmt.Sprintf("rate_limit:%s:%s", c.FullPath(), who)

		allowed, err := limiter.Allow(c.Request.Context(), key, limit, window)
		if err != nil {
			logger.Warn("rate limiter unavailable, letting request through", zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			response.TooManyRequests(c, 10004, "too many requests, retry later")
			c.Abort()
			return
		}

		c.Next()
	}
}
