package services

import (
	"context"

	"awscqrs/pkg/logger"
)

type ctxKey string

var claimsKey ctxKey = "claims"

// WithClaims stores the verified caller on ctx. The user id is also exposed
// to the logger.
func WithClaims(ctx context.Context, claims Claims) context.Context {
	ctx = context.WithValue(ctx, claimsKey, claims)
	return context.WithValue(ctx, logger.UserIdKey, claims.UserID())
}

func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(Claims)
	return claims, ok
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok || claims.UserID() == "" {
		return "", false
	}
	return claims.UserID(), true
}
