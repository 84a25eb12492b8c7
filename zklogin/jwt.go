package zklogin

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ruteri/sui-escrow-gateway/cryptoutils"
	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

// Claims are the JWT claims the flow relies on.
type Claims struct {
	jwt.RegisteredClaims
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	Nonce   string `json:"nonce,omitempty"`
}

// ParseJWT decodes a JWT without verifying its signature. The proof service
// verifies the credential against the provider keys.
func ParseJWT(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidCredential, err)
	}
	if claims.Subject == "" || claims.Issuer == "" || len(claims.Audience) == 0 {
		return nil, fmt.Errorf("%w: sub, iss and aud are required", interfaces.ErrInvalidCredential)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: exp is required", interfaces.ErrInvalidCredential)
	}
	return claims, nil
}

// Aud is the audience the address is bound to.
func (c *Claims) Aud() string {
	return c.Audience[0]
}

// Expired reports whether exp is not strictly after now.
func (c *Claims) Expired(now time.Time) bool {
	return c.ExpiresAt == nil || !c.ExpiresAt.Time.After(now)
}

// EmailHash is the account key used by create_account. Empty without an email claim.
func (c *Claims) EmailHash() string {
	if c.Email == "" {
		return ""
	}
	return cryptoutils.HashEmail(c.Email)
}

// IsSessionValid reports whether s may sign at now: the JWT and the address are
// present and the JWT has not expired.
func IsSessionValid(s *interfaces.AuthSession, now time.Time) bool {
	if s == nil || s.JWT == "" || s.UserAddress == "" {
		return false
	}
	claims, err := ParseJWT(s.JWT)
	if err != nil {
		return false
	}
	return !claims.Expired(now)
}
