// Package auth issues and verifies the bearer tokens the HTTP surface
// accepts. Tokens are tenant-scoped HS256 JWTs; each tenant signs with
// its own secret.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"antbox-backend/pkg/errors"
)

// DefaultTokenTTL is the lifetime of issued tokens.
const DefaultTokenTTL = 4 * time.Hour

// Claims carried inside every issued token.
type Claims struct {
	Email  string   `json:"email"`
	Groups []string `json:"groups,omitempty"`
	Tenant string   `json:"tenant"`
	jwt.RegisteredClaims
}

// JWT signs and verifies tokens for one tenant.
type JWT struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewJWT creates a signer/verifier for the given shared secret. A zero
// ttl falls back to DefaultTokenTTL.
func NewJWT(secret, issuer string, ttl time.Duration) *JWT {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &JWT{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

// Issue signs a token for the principal.
func (j *JWT) Issue(email string, groups []string, tenant string) (string, error) {
	now := time.Now()
	claims := Claims{
		Email:  email,
		Groups: groups,
		Tenant: tenant,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secret)
	if err != nil {
		return "", errors.NewUnknownError("signing token", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning its claims.
func (j *JWT) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.NewUnauthorizedError("unexpected signing method")
			}
			return j.secret, nil
		},
		jwt.WithIssuer(j.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, errors.NewUnauthorizedError("invalid token").WithCause(err)
	}
	if !token.Valid {
		return nil, errors.NewUnauthorizedError("invalid token")
	}
	return claims, nil
}
