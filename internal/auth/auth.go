// Package auth parses bearer tokens issued by the account service and
// exposes the caller's identity through the request context.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing_bearer_token")
	ErrInvalidToken = errors.New("invalid_bearer_token")
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID snowflake.ID
	Role   string
}

// IsAdmin reports whether the caller carries the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ParseToken validates an HS256 bearer token and extracts the principal.
// The subject claim carries the snowflake user id.
func ParseToken(raw, secret string) (Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Principal{}, ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(raw, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return Principal{}, ErrInvalidToken
	}

	parsed, ok := token.Claims.(*claims)
	if !ok || parsed.Subject == "" {
		return Principal{}, ErrInvalidToken
	}
	userID, err := snowflake.ParseString(parsed.Subject)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}

	role := parsed.Role
	if role == "" {
		role = RoleUser
	}
	return Principal{UserID: userID, Role: role}, nil
}

// FromBearerHeader strips the "Bearer " prefix from an Authorization header.
func FromBearerHeader(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrInvalidToken
	}
	return strings.TrimSpace(parts[1]), nil
}

type contextKey struct{}

// WithPrincipal stores the principal on the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// PrincipalFromContext retrieves the principal stored by the auth
// middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}
