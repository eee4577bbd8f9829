package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"sheetcalc/api/internal/ratelimit"
)

type Limiter interface {
	Allow(ctx context.Context, key string, limit int, now time.Time) (ratelimit.Result, error)
}

// RateLimit caps requests per client IP for one route scope. When the
// limiter backend fails the request is let through.
func RateLimit(limiter Limiter, scope string, limit int, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := scope + ":" + c.ClientIP()
		res, err := limiter.Allow(c.Request.Context(), key, limit, time.Now())
		if err != nil {
			log.Warn().Err(err).Str("scope", scope).Msg("rate limiter unavailable")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			retryAfter := int(time.Until(res.Reset).Seconds()) + 1
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "Too many requests"})
			return
		}
		c.Next()
	}
}
