package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicateJTI is an exported constant or variable used by the token ledger.
	ErrDuplicateJTI = errors.New("duplicate token id")
	// ErrUnavailable is an exported constant or variable used by the token ledger.
	ErrUnavailable = errors.New("token ledger unavailable")
)

// Record is one refresh-token row. TokenHash is the SHA-256 hex digest of
// the signed token; the token itself is never written to the ledger.
type Record struct {
	JTI       string
	UserID    string
	TokenHash string
	FamilyID  string
	DeviceID  string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ConsumeOutcome reports what a Consume call observed.
type ConsumeOutcome int

const (
	// ConsumeOK is an exported constant or variable used by the token ledger.
	ConsumeOK ConsumeOutcome = iota
	// ConsumeAlreadyRevoked is an exported constant or variable used by the token ledger.
	ConsumeAlreadyRevoked
	// ConsumeNotFound is an exported constant or variable used by the token ledger.
	ConsumeNotFound
)

// Store is the durable source of truth for refresh tokens. Consume is the
// one-time-use gate for rotation: it must atomically flip revoked from false
// to true so that exactly one of N concurrent presenters of the same jti
// observes ConsumeOK.
type Store interface {
	Create(ctx context.Context, record Record) error
	Get(ctx context.Context, jti string) (*Record, error)
	IsRevoked(ctx context.Context, jti string) (bool, error)
	Consume(ctx context.Context, jti string) (ConsumeOutcome, error)
	Revoke(ctx context.Context, jti string) (bool, error)
	RevokeFamily(ctx context.Context, familyID string) (int64, error)
	FamilyMembers(ctx context.Context, familyID string) ([]string, error)
	UserTokens(ctx context.Context, userID string, includeRevoked, includeExpired bool) ([]Record, error)
	RevokeUserTokens(ctx context.Context, userID string) (int64, error)
	CleanupExpired(ctx context.Context) (int64, error)
	CleanupRevoked(ctx context.Context, olderThan time.Duration) (int64, error)
	Ping(ctx context.Context) error
}
