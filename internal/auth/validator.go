package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// TokenAudience is the audience monitor tokens must carry.
	TokenAudience = "rendezvous-monitor"
	// TokenIssuer is the issuer monitor tokens must carry.
	TokenIssuer = "authorizer"
)

// Validator validates monitor bearer tokens and returns parsed claims.
type Validator interface {
	Validate(ctx context.Context, token string) (*Claims, error)
}

// NewValidator returns a Validator that checks HS256 tokens signed with secret.
func NewValidator(secret string) (Validator, error) {
	if secret == "" {
		return nil, errors.New("monitor jwtSecret must be set")
	}
	return &localValidator{secret: []byte(secret)}, nil
}

type localValidator struct {
	secret []byte
}

func (v *localValidator) Validate(ctx context.Context, token string) (*Claims, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithAudience(TokenAudience), jwt.WithIssuer(TokenIssuer))
	if err != nil {
		return nil, fmt.Errorf("jwt validation failed: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("invalid jwt token")
	}
	return claims.Copy(), nil
}
