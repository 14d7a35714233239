package services

import (
	"encoding/json"
	"strings"

	awscqrs_errors "awscqrs/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

// AdminGroup is the group allowed to use the admin endpoints.
const AdminGroup = "admins"

// Groups is the cognito:groups claim. Identity providers send it either as a
// JSON array or as one string like "[admins, users]".
type Groups []string

func (g *Groups) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*g = list
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*g = parseGroups(raw)
	return nil
}

func (g Groups) Contains(group string) bool {
	for _, v := range g {
		if v == group {
			return true
		}
	}
	return false
}

type Claims struct {
	Username string `json:"cognito:username,omitempty"`
	Groups   Groups `json:"cognito:groups,omitempty"`
	jwt.RegisteredClaims
}

// UserID is the identity events are owned by.
func (c Claims) UserID() string {
	if u := strings.TrimSpace(c.Username); u != "" {
		return u
	}
	return strings.TrimSpace(c.Subject)
}

func (c Claims) IsAdmin() bool {
	return c.Groups.Contains(AdminGroup)
}

// TokenVerifier checks HMAC-signed bearer tokens. Issuing them happens
// elsewhere.
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

func (v *TokenVerifier) Parse(tokenString string) (Claims, error) {
	if tokenString == "" {
		return Claims{}, awscqrs_errors.ErrUnauthorized
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, awscqrs_errors.ErrUnauthorized
		}
		return v.secret, nil
	})
	if err != nil {
		return Claims{}, awscqrs_errors.ErrUnauthorized
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID() == "" {
		return Claims{}, awscqrs_errors.ErrUnauthorized
	}
	return *claims, nil
}

// IsIncludedInGroup reports whether a raw groups claim names group.
func IsIncludedInGroup(groupsClaim, group string) bool {
	return Groups(parseGroups(groupsClaim)).Contains(group)
}

func parseGroups(raw string) []string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.Trim(strings.TrimSpace(part), `"`)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
