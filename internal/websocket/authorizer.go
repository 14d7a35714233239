package websocket

import (
	"strings"

	"awscqrs/internal/services"
)

// ResolveOwner decides whose events a connection watches. Everyone may watch
// their own events; only admins may watch another owner.
func ResolveOwner(claims services.Claims, requested string) (string, bool) {
	requested = strings.TrimSpace(requested)
	self := claims.UserID()
	if requested == "" || requested == self {
		return self, self != ""
	}
	return requested, claims.IsAdmin()
}
