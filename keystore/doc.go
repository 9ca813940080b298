// Package keystore owns the RSA signing material: loading PEM pairs through
// a pluggable Provider, scheduled rotation with timestamped backups, a
// Redis-published rotation record that carries the previous public key
// through its overlap window, and JWKS export.
//
// Rotation is crash-safe in one direction: the old pair is archived before
// the new pair is written, so a failure mid-rotation never leaves the store
// without a loadable key.
package keystore
