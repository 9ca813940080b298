package goTokens

import (
	"errors"
	"time"
)

// Config defines a public type used by goTokens APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT        JWTConfig
	Keys       KeyConfig
	Revocation RevocationConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig defines a public type used by goTokens APIs.
//
// JWTConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type JWTConfig struct {
	Issuer   string
	Audience string

	AccessTTL           time.Duration
	PrivilegedAccessTTL time.Duration
	PrivilegedRoles     []string

	RefreshTTL time.Duration
	Leeway     time.Duration
}

/*
====================================
KEY CONFIG
====================================
*/

// KeyConfig defines a public type used by goTokens APIs.
//
// KeyConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type KeyConfig struct {
	RotationPeriod  time.Duration
	RotationOverlap time.Duration
	KeySize         int
	MetadataKey     string
}

/*
====================================
REVOCATION CONFIG
====================================
*/

// FailMode defines a public type used by goTokens APIs.
//
// FailMode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type FailMode int

const (
	// FailClosed is an exported constant or variable used by the token engine.
	FailClosed FailMode = iota
	// FailOpen is an exported constant or variable used by the token engine.
	FailOpen
)

// RevocationConfig defines a public type used by goTokens APIs.
//
// RevocationConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RevocationConfig struct {
	// FailMode controls access-token verification behavior when the
	// revocation cache is unreachable. FailClosed rejects, FailOpen accepts
	// on signature alone.
	FailMode FailMode

	// RetentionCap bounds how long revocation entries live in the cache.
	RetentionCap time.Duration
}

// AuditConfig defines a public type used by goTokens APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by goTokens APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig describes the defaultconfig operation and its observable behavior.
//
// DefaultConfig may return an error when input validation, dependency calls, or security checks fail.
// DefaultConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			Issuer:              "auth-service",
			Audience:            "auth-clients",
			AccessTTL:           1 * time.Hour,
			PrivilegedAccessTTL: 30 * time.Minute,
			PrivilegedRoles:     []string{"admin", "super_admin", "manager"},
			RefreshTTL:          7 * 24 * time.Hour,
			Leeway:              0,
		},
		Keys: KeyConfig{
			RotationPeriod:  90 * 24 * time.Hour,
			RotationOverlap: 7 * 24 * time.Hour,
			KeySize:         2048,
			MetadataKey:     "jwt:key:metadata",
		},
		Revocation: RevocationConfig{
			FailMode:     FailClosed,
			RetentionCap: 7 * 24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivilegedRoles = cloneStrings(cfg.JWT.PrivilegedRoles)
	return out
}

func cloneStrings(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.Issuer == "" {
		return errors.New("JWT Issuer is required")
	}
	if c.JWT.Audience == "" {
		return errors.New("JWT Audience is required")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.PrivilegedAccessTTL <= 0 {
		return errors.New("JWT PrivilegedAccessTTL must be > 0")
	}
	if c.JWT.PrivilegedAccessTTL > c.JWT.AccessTTL {
		return errors.New("JWT PrivilegedAccessTTL must be <= AccessTTL")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be > AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Keys
	if c.Keys.KeySize < 2048 {
		return errors.New("Keys KeySize must be >= 2048")
	}
	if c.Keys.RotationPeriod <= 0 {
		return errors.New("Keys RotationPeriod must be > 0")
	}
	if c.Keys.RotationOverlap < 0 {
		return errors.New("Keys RotationOverlap must be >= 0")
	}
	if c.Keys.RotationOverlap >= c.Keys.RotationPeriod {
		return errors.New("Keys RotationOverlap must be < RotationPeriod")
	}

	// Revocation
	switch c.Revocation.FailMode {
	case FailClosed, FailOpen:
		// valid
	default:
		return errors.New("invalid Revocation FailMode")
	}
	if c.Revocation.RetentionCap <= 0 {
		return errors.New("Revocation RetentionCap must be > 0")
	}

	// Audit
	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 {
			return errors.New("Audit BufferSize must be > 0 when audit is enabled")
		}
	}

	return nil
}
