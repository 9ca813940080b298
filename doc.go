// Package goTokens provides a JWT lifecycle engine with RS256 access tokens,
// rotating refresh tokens with family-based reuse detection, Redis-backed
// revocation, and scheduled signing-key rotation with JWKS publication.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goTokens is the public surface. It exposes [Engine], [Builder], [Config], and value types
// (TokenPair, IntrospectionResponse, MetricsSnapshot, etc.). Flow orchestration lives under
// internal/ and is never exported. Storage concerns are split into sub-packages: the
// durable refresh ledger ([ledger]), the Redis revocation cache ([revocation]), the
// signing-key store ([keystore]), and the wire codec ([token]).
//
// # What this package must NOT do
//
//   - Expose Redis clients, ledger pools, or private key material in its public API.
//   - Store user credentials or perform password verification; identity lookups go
//     through the caller-supplied [UserProvider].
//   - Import any sub-package that re-imports goTokens (no import cycles).
//
// # Trust model
//
// The durable ledger, not the cache, decides whether a refresh token is alive. The cache
// is a latency optimization for access-token revocation checks; its outage behavior is
// governed by [RevocationConfig.FailMode]. Access tokens verify offline on signature and
// expiry, plus one cache round-trip for the revocation exclusion set.
package goTokens
