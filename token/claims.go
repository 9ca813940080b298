package token

import "github.com/golang-jwt/jwt/v5"

// Type discriminates access tokens from refresh tokens via the token_type
// claim. A token of one type is never accepted where the other is expected.
type Type string

const (
	// TypeAccess is an exported constant or variable used by the token codec.
	TypeAccess Type = "access"
	// TypeRefresh is an exported constant or variable used by the token codec.
	TypeRefresh Type = "refresh"
)

// BaseClaims defines a public type used by goTokens APIs.
//
// BaseClaims instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type BaseClaims struct {
	TokenType Type `json:"token_type"`
	jwt.RegisteredClaims
}

// AccessClaims defines a public type used by goTokens APIs.
//
// AccessClaims instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AccessClaims struct {
	Email       string   `json:"email,omitempty"`
	Role        string   `json:"role,omitempty"`
	CompanyID   string   `json:"company_id,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	BaseClaims
}

// RefreshClaims defines a public type used by goTokens APIs.
//
// RefreshClaims instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RefreshClaims struct {
	FamilyID string `json:"fid"`
	DeviceID string `json:"device_id,omitempty"`
	BaseClaims
}

// JTI returns the token identifier claim.
func (c *BaseClaims) JTI() string {
	return c.ID
}

// UserID returns the subject claim.
func (c *BaseClaims) UserID() string {
	return c.Subject
}
