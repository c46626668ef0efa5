package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized covers every verification failure: missing token, bad
// signature, expiry. Callers map it to a 401.
var ErrUnauthorized = errors.New("auth: invalid or missing credentials")

// Identity is the claim extracted from a verified bearer token.
type Identity struct {
	Subject string
}

type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTVerifier validates bearer tokens issued by the external auth service.
// Tokens are HMAC-signed with a secret shared between the services.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	_ = ctx
	if token == "" {
		return Identity{}, ErrUnauthorized
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrUnauthorized
	}

	subject := claims.Username
	if subject == "" {
		subject = claims.Subject
	}
	if subject == "" {
		return Identity{}, ErrUnauthorized
	}
	return Identity{Subject: subject}, nil
}
