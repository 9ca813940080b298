package goTokens

import (
	"time"

	"github.com/MrEthical07/goTokens/keystore"
	"github.com/MrEthical07/goTokens/ledger"
	"github.com/MrEthical07/goTokens/revocation"
	"github.com/MrEthical07/goTokens/token"
)

// Engine defines a public type used by goTokens APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config       Config
	codec        *token.Codec
	keys         *keystore.Store
	cache        *revocation.Store
	ledger       ledger.Store
	audit        *auditDispatcher
	metrics      *Metrics
	userProvider UserProvider
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// accessTTLForRole shortens the access token lifetime for privileged roles.
func (e *Engine) accessTTLForRole(role string) time.Duration {
	for _, privileged := range e.config.JWT.PrivilegedRoles {
		if role == privileged {
			return e.config.JWT.PrivilegedAccessTTL
		}
	}
	return e.config.JWT.AccessTTL
}

// revocationTTL bounds a cache entry to the token's remaining lifetime,
// capped by the retention limit.
func (e *Engine) revocationTTL(expiresAt time.Time) time.Duration {
	remaining := time.Until(expiresAt)
	if remaining <= 0 {
		return 0
	}
	if limit := e.config.Revocation.RetentionCap; limit > 0 && remaining > limit {
		return limit
	}
	return remaining
}
