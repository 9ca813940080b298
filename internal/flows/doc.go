// Package flows contains dependency-injected state machines for the
// multi-step token operations. Each flow receives its collaborators as
// function fields, returns a typed result instead of a package error,
// and leaves sentinel mapping, auditing, and metrics to the caller.
package flows
