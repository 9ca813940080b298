// Package ledger is the durable record of refresh tokens: one row per
// issued token carrying its hash, family id, device id, expiry, and a
// monotonic revoked flag.
//
// The ledger, not the cache, decides whether a refresh token is alive.
// Rotation goes through [Store.Consume], whose conditional update makes
// one-time use a database guarantee instead of an application convention.
// [Postgres] is the production implementation; [Memory] mirrors its
// semantics for tests and examples.
package ledger
