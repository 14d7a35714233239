package middleware

import (
	"strings"

	"awscqrs/internal/services"
	awscqrs_errors "awscqrs/pkg/errors"

	"github.com/gin-gonic/gin"
)

func AuthMiddleware(verifier *services.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := verifier.Parse(extractBearer(c))
		if err != nil {
			abort(c, awscqrs_errors.UnauthenticatedError("unauthorized"))
			return
		}

		ctx := services.WithClaims(c.Request.Context(), claims)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// OptionalAuthMiddleware attaches the caller's claims when a valid token is
// present and lets every request through. The endpoint answers 401 itself,
// after its own method and body checks.
func OptionalAuthMiddleware(verifier *services.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, err := verifier.Parse(extractBearer(c)); err == nil {
			c.Request = c.Request.WithContext(services.WithClaims(c.Request.Context(), claims))
		}
		c.Next()
	}
}

// RequireGroup lets only members of group through. It runs after
// AuthMiddleware.
func RequireGroup(group string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := services.ClaimsFromContext(c.Request.Context())
		if !ok {
			abort(c, awscqrs_errors.UnauthenticatedError("unauthorized"))
			return
		}
		if !claims.Groups.Contains(group) {
			abort(c, awscqrs_errors.ForbiddenError("requires group "+group))
			return
		}
		c.Next()
	}
}

func extractBearer(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
