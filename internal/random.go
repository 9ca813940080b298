package internal

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewTokenID returns a fresh token identifier (jti). UUIDv4 keeps the id
// opaque and collision-free across instances without shared state.
func NewTokenID() string {
	return uuid.NewString()
}

// HashToken returns the hex-encoded SHA-256 digest of a signed token.
// The ledger stores only this digest, never the token itself.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
