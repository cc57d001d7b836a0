package httpapi

import (
	"context"
	"net/http"

	"auditchain/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Limiter caps concurrent work per key. utils.ConcurrencyCap implements it over Redis.
type Limiter interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// UploadCap bounds concurrent uploads per client IP. A nil limiter disables
// the cap. Limiter errors fail open so a Redis outage does not block uploads.
func UploadCap(l Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}
		key := c.ClientIP()
		ctx := context.WithoutCancel(c.Request.Context())

		ok, err := l.Acquire(ctx, key)
		if err != nil {
			logger.FromGin(c).Warn("upload cap unavailable, continuing", "client_ip", key, "err", err)
			c.Next()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "TooManyRequests", "details": "too many concurrent uploads from this client"})
			return
		}
		defer func() {
			if err := l.Release(ctx, key); err != nil {
				logger.FromGin(c).Warn("upload cap release failed", "client_ip", key, "err", err)
			}
		}()
		c.Next()
	}
}
