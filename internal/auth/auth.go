// Package auth turns a bearer credential into the owner ID every engine
// operation is scoped to.
package auth

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/apperr"
)

type Principal struct {
	OwnerID string
}

type Verifier interface {
	Verify(ctx context.Context, token string) (Principal, error)
}

// JWTVerifier accepts HS256 tokens and reads the owner from "sub", falling
// back to "user_id".
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is empty")
	}
	return &JWTVerifier{secret: []byte(secret)}, nil
}

func (v *JWTVerifier) Verify(_ context.Context, raw string) (Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Principal{}, apperr.ErrUnauthenticated
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil {
		return Principal{}, apperr.Wrap(apperr.ErrUnauthenticated, err)
	}

	owner := claimString(claims["sub"])
	if owner == "" {
		owner = claimString(claims["user_id"])
	}
	if owner == "" {
		return Principal{}, apperr.Describe(apperr.ErrUnauthenticated, "token has no subject")
	}
	return Principal{OwnerID: owner}, nil
}

func claimString(raw any) string {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	}
	return ""
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.OwnerID != ""
}
