package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims *Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func validClaims(scopes ...string) *Claims {
	return &Claims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{TokenAudience},
			Issuer:    TokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestValidatorAcceptsSignedToken(t *testing.T) {
	v, err := NewValidator("monitor-secret")
	require.NoError(t, err)

	claims, err := v.Validate(context.Background(), signToken(t, "monitor-secret", validClaims("peers")))
	require.NoError(t, err)
	require.True(t, claims.HasScope("peers"))
	require.False(t, claims.HasScope("watch"))
}

func TestValidatorRejects(t *testing.T) {
	v, err := NewValidator("monitor-secret")
	require.NoError(t, err)

	wrongAudience := validClaims()
	wrongAudience.Audience = jwt.ClaimStrings{"nexus"}

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	cases := map[string]string{
		"wrong secret":   signToken(t, "other", validClaims()),
		"wrong audience": signToken(t, "monitor-secret", wrongAudience),
		"expired":        signToken(t, "monitor-secret", expired),
		"garbage":        "not-a-token",
	}
	for name, tok := range cases {
		_, err := v.Validate(context.Background(), tok)
		require.Error(t, err, name)
	}
}

func TestNewValidatorRequiresSecret(t *testing.T) {
	_, err := NewValidator("")
	require.Error(t, err)
}

func TestClaimsWithoutScopesGrantAll(t *testing.T) {
	c := validClaims()
	require.True(t, c.HasScope("stats"))
	cp := c.Copy()
	require.Equal(t, c, cp)
}
