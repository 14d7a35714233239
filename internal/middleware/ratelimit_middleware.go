package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"awscqrs/internal/redis"
	"awscqrs/internal/services"
	awscqrs_errors "awscqrs/pkg/errors"

	"github.com/gin-gonic/gin"
)

type CommandLimiter interface {
	AllowCommand(ctx context.Context, userID string) (*redis.RateLimitResult, error)
}

// CommandRateLimitMiddleware caps commands per user. Only authenticated POSTs
// count; anything else passes through so that ingress rejects it with 405
// or 401 itself.
func CommandRateLimitMiddleware(limiter CommandLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := services.UserIDFromContext(c.Request.Context())
		if !ok || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		result, err := limiter.AllowCommand(c.Request.Context(), userID)
		if err != nil {
			abort(c, fmt.Errorf("rate limit: %w", err))
			return
		}

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			abort(c, awscqrs_errors.TooManyRequestsError("command rate limit exceeded"))
			return
		}

		c.Next()
	}
}

func setRateLimitHeaders(c *gin.Context, result *redis.RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(result.ResetIn.Seconds()), 10))
}
