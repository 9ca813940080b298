package goTokens

import "errors"

var (
	// ErrTokenInvalid is an exported constant or variable used by the token engine.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is an exported constant or variable used by the token engine.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is an exported constant or variable used by the token engine.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenTypeMismatch is an exported constant or variable used by the token engine.
	ErrTokenTypeMismatch = errors.New("token type mismatch")
	// ErrTokenReuse is an exported constant or variable used by the token engine.
	ErrTokenReuse = errors.New("refresh token reuse detected")
	// ErrUserNotFound is an exported constant or variable used by the token engine.
	ErrUserNotFound = errors.New("user not found")
	// ErrLedgerUnavailable is an exported constant or variable used by the token engine.
	ErrLedgerUnavailable = errors.New("token ledger unavailable")
	// ErrCacheUnavailable is an exported constant or variable used by the token engine.
	ErrCacheUnavailable = errors.New("revocation cache unavailable")
	// ErrKeyRotationFailed is an exported constant or variable used by the token engine.
	ErrKeyRotationFailed = errors.New("signing key rotation failed")
	// ErrEngineNotReady is an exported constant or variable used by the token engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
