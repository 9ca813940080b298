// Package token implements the RS256 JWT codec: a closed claims model with a
// token_type discriminator, kid-routed multi-key verification, and an
// expiry-tolerant decode path for revocation and introspection of dead tokens.
//
// The codec never chooses keys itself; it asks a [KeyResolver] (normally the
// keystore) for signing and verification material on every call so key
// rotation takes effect without rebuilding the codec.
package token
