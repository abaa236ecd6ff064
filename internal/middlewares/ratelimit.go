package middlewares

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/osslararemellan/ole/utils/ratelimit"
)

// RateLimit counts each request against scope, keyed by the authenticated
// profile or, before Auth, the client address. Limiter errors let the
// request through; the limiter itself decides whether to fail open.
func RateLimit(limiter ratelimit.Limiter, scope ratelimit.Scope, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := c.ClientIP()
		if id := UserID(c); id != 0 {
			subject = strconv.FormatUint(uint64(id), 10)
		}

		allowed, err := limiter.Allow(c.Request.Context(), scope, subject)
		if err != nil {
			logger.Warn("rate limit check failed", zap.String("scope", string(scope)), zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, try again later"})
			return
		}
		c.Next()
	}
}

// MaxConcurrency rejects requests beyond limit in flight with 503 instead of
// letting goroutines pile up.
func MaxConcurrency(limit int) gin.HandlerFunc {
	sem := make(chan struct{}, limit)
	return func(c *gin.Context) {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			c.Next()
		default:
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "too many concurrent requests"})
		}
	}
}
