package security

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"merrygit_go/internal/domain"
)

// SessionClaims are the parts of a backend session token the bridge reads.
type SessionClaims struct {
	UserID    string
	ExpiresAt time.Time
}

var parser = jwt.NewParser()

// ParseSessionToken reads the user id and expiry of a backend JWT. The user
// id comes from "sub", then "id" or "userId"; it is empty when none is set.
// The signature is not checked here; the backend checks it on every
// handshake. Tokens that are not JWTs fail with ErrInvalidInput.
func ParseSessionToken(raw string) (SessionClaims, error) {
	if raw == "" {
		return SessionClaims{}, fmt.Errorf("empty token: %w", domain.ErrInvalidInput)
	}

	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return SessionClaims{}, fmt.Errorf("parse token: %v: %w", err, domain.ErrInvalidInput)
	}

	var out SessionClaims
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		out.UserID = sub
	} else {
		for _, key := range []string{"id", "userId"} {
			if v, ok := claims[key].(string); ok && v != "" {
				out.UserID = v
				break
			}
		}
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return SessionClaims{}, fmt.Errorf("token expiry: %v: %w", err, domain.ErrInvalidInput)
	}
	if exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}
