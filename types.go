package goTokens

import "context"

// UserProvider is the interface that callers must implement to integrate
// goTokens with their user database. The engine calls it during refresh
// rotation to rebuild access-token claims from current user state, never
// from the claims of the presented token.
type UserProvider interface {
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
}

// UserRecord is the identity snapshot returned by [UserProvider]. It carries
// exactly the fields that end up in access-token claims.
type UserRecord struct {
	UserID      string
	Email       string
	Role        string
	CompanyID   string
	Permissions []string
}

// AccessTokenInput is the input for [Engine.IssueAccessToken].
type AccessTokenInput struct {
	UserID      string
	Email       string
	Role        string
	CompanyID   string
	Permissions []string
}

// IssuedAccessToken is returned by [Engine.IssueAccessToken].
type IssuedAccessToken struct {
	Token     string
	JTI       string
	ExpiresIn int64
}

// IssuedRefreshToken is returned by [Engine.IssueRefreshToken]. FamilyID
// equals JTI when the token starts a new rotation family.
type IssuedRefreshToken struct {
	Token    string
	JTI      string
	FamilyID string
}

// TokenPair is returned by [Engine.IssueTokenPair] and
// [Engine.RotateRefreshToken]. ExpiresIn is the access token lifetime in
// seconds.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	AccessJTI    string
	RefreshJTI   string
	FamilyID     string
	ExpiresIn    int64
}

// AccessClaims is the verified claim set returned by
// [Engine.VerifyAccessToken].
type AccessClaims struct {
	UserID      string
	Email       string
	Role        string
	CompanyID   string
	Permissions []string
	JTI         string
	IssuedAt    int64
	NotBefore   int64
	ExpiresAt   int64
}

// RefreshClaims is the verified claim set returned by
// [Engine.VerifyRefreshToken].
type RefreshClaims struct {
	UserID    string
	JTI       string
	FamilyID  string
	DeviceID  string
	IssuedAt  int64
	NotBefore int64
	ExpiresAt int64
}
