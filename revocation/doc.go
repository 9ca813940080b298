// Package revocation is the Redis exclusion cache for issued tokens: a
// bounded-TTL revoked set keyed by jti, per-family membership sets used by
// the reuse cascade, and a small binary sidecar record per access token for
// introspection.
//
// The cache is an accelerator for refresh tokens (the ledger stays
// authoritative) but it is the only revocation record access tokens have.
// Every operation wraps backend failures in [ErrUnavailable] so callers can
// apply their fail-open/fail-closed policy.
package revocation
