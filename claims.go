package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the identity payload embedded in a credential. The subsystem
// never verifies the signature segment; authenticity was established by the
// server when the credential was issued.
type Claims struct {
	jwt.RegisteredClaims
	UserID        string   `json:"userId,omitempty"`
	TenantID      string   `json:"tenantId,omitempty"`
	TenantCode    string   `json:"tenantCode,omitempty"`
	CompanyID     string   `json:"companyId,omitempty"` // tenant alias, kept for compatibility
	Roles         []string `json:"roles,omitempty"`
	IsSystemAdmin bool     `json:"isSystemAdmin,omitempty"`
	Language      string   `json:"language,omitempty"`
}

// Subject returns the subject claim.
func (c *Claims) Subject() string {
	return c.RegisteredClaims.Subject
}

// Expires returns the expiration time, zero when the claim is absent.
func (c *Claims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issuance time, zero when the claim is absent.
func (c *Claims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// HasRole checks if the claims include a specific role.
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the claims mark a system administrator.
func (c *Claims) IsAdmin() bool {
	return c.IsSystemAdmin
}

// Clone returns a deep copy, so merged views never mutate decoded claims.
func (c *Claims) Clone() *Claims {
	if c == nil {
		return nil
	}
	clone := *c
	if len(c.Roles) > 0 {
		clone.Roles = append([]string(nil), c.Roles...)
	}
	return &clone
}
