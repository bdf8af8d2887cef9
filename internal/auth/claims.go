package auth

import "github.com/golang-jwt/jwt/v5"

// Claims represents the JWT payload expected from monitor clients.
type Claims struct {
	// Scopes lists what the bearer may read: "peers", "stats", "watch".
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// Copy returns a deep copy of claims to avoid sharing state across goroutines.
func (c *Claims) Copy() *Claims {
	if c == nil {
		return nil
	}
	copyClaims := *c
	if len(c.Scopes) > 0 {
		copyClaims.Scopes = append([]string{}, c.Scopes...)
	}
	return &copyClaims
}

// HasScope reports whether the claims grant scope. A token without any scope
// grants everything.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	if len(c.Scopes) == 0 {
		return true
	}
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
