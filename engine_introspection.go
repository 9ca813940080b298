package goTokens

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/MrEthical07/goTokens/token"
	"github.com/golang-jwt/jwt/v5"
)

// IntrospectionResponse follows the RFC 7662 response shape. When Active is
// false every other field is omitted, so callers cannot distinguish expired,
// revoked, and forged tokens from the response alone.
type IntrospectionResponse struct {
	Active    bool   `json:"active"`
	TokenType string `json:"token_type,omitempty"`
	Subject   string `json:"sub,omitempty"`
	Issuer    string `json:"iss,omitempty"`
	Audience  string `json:"aud,omitempty"`
	JTI       string `json:"jti,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
	NotBefore int64  `json:"nbf,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`

	Scope     string `json:"scope,omitempty"`
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	CompanyID string `json:"company_id,omitempty"`
	FamilyID  string `json:"fid,omitempty"`
	DeviceID  string `json:"device_id,omitempty"`
}

// TokenReport is the administrative view returned by [Engine.TokenInfo].
// Unlike introspection it distinguishes expired from revoked and works on
// dead tokens.
type TokenReport struct {
	TokenType string
	UserID    string
	JTI       string
	FamilyID  string
	DeviceID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Expired   bool
	Revoked   bool
}

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	CacheAvailable  bool
	CacheLatency    time.Duration
	LedgerAvailable bool
}

// Introspect verifies a token of either type and reports its state in the
// RFC 7662 shape. All failures collapse to active:false.
func (e *Engine) Introspect(ctx context.Context, tokenStr string) IntrospectionResponse {
	if e == nil || e.codec == nil {
		return IntrospectionResponse{}
	}

	typ, err := token.UnverifiedType(tokenStr)
	if err != nil {
		return IntrospectionResponse{}
	}

	switch typ {
	case token.TypeRefresh:
		claims, err := e.VerifyRefreshToken(ctx, tokenStr)
		if err != nil {
			return IntrospectionResponse{}
		}
		return IntrospectionResponse{
			Active:    true,
			TokenType: string(token.TypeRefresh),
			Subject:   claims.UserID,
			Issuer:    e.config.JWT.Issuer,
			Audience:  e.config.JWT.Audience,
			JTI:       claims.JTI,
			IssuedAt:  claims.IssuedAt,
			NotBefore: claims.NotBefore,
			ExpiresAt: claims.ExpiresAt,
			FamilyID:  claims.FamilyID,
			DeviceID:  claims.DeviceID,
		}
	default:
		claims, err := e.VerifyAccessToken(ctx, tokenStr)
		if err != nil {
			return IntrospectionResponse{}
		}
		return IntrospectionResponse{
			Active:    true,
			TokenType: string(token.TypeAccess),
			Subject:   claims.UserID,
			Issuer:    e.config.JWT.Issuer,
			Audience:  e.config.JWT.Audience,
			JTI:       claims.JTI,
			IssuedAt:  claims.IssuedAt,
			NotBefore: claims.NotBefore,
			ExpiresAt: claims.ExpiresAt,
			Scope:     strings.Join(claims.Permissions, " "),
			Username:  claims.Email,
			Email:     claims.Email,
			Role:      claims.Role,
			CompanyID: claims.CompanyID,
		}
	}
}

// RevokeTokenString revokes a token presented by value. The decode is
// expiry-tolerant so an already-expired token can still be pushed into the
// exclusion set, but signature, issuer, and audience must check out.
func (e *Engine) RevokeTokenString(ctx context.Context, tokenStr string) error {
	if e == nil || e.codec == nil {
		return ErrEngineNotReady
	}

	typ, err := token.UnverifiedType(tokenStr)
	if err != nil {
		return ErrTokenInvalid
	}

	switch typ {
	case token.TypeRefresh:
		claims, err := e.codec.DecodeRefreshExpired(tokenStr)
		if err != nil {
			return mapRevokeDecodeError(err)
		}
		// A token without a jti has no revocation identity.
		if claims.JTI() == "" {
			return ErrTokenInvalid
		}
		return e.RevokeToken(ctx, claims.JTI())
	default:
		claims, err := e.codec.DecodeAccessExpired(tokenStr)
		if err != nil {
			return mapRevokeDecodeError(err)
		}
		if claims.JTI() == "" {
			return ErrTokenInvalid
		}

		var expiresAt time.Time
		if claims.ExpiresAt != nil {
			expiresAt = claims.ExpiresAt.Time
		}
		ttl := e.revocationTTL(expiresAt)
		if ttl <= 0 {
			// Already self-rejecting by expiry; nothing to exclude.
			return nil
		}
		if err := e.cache.MarkRevoked(ctx, claims.JTI(), ttl); err != nil {
			return errors.Join(ErrCacheUnavailable, err)
		}
		if err := e.cache.InvalidateAccessMeta(ctx, claims.JTI()); err != nil {
			// The exclusion-set entry above is the revocation; stale metadata
			// only degrades introspection.
			log.Print("goTokens: access metadata invalidation failed")
		}
		e.metricInc(MetricTokenRevoked)
		e.emitAudit(ctx, auditEventTokenRevoked, true, claims.UserID(), claims.JTI(), "", nil, nil)
		return nil
	}
}

// TokenInfo inspects a token by value for administrative tooling. It works
// on expired tokens and reports expiry and revocation as separate flags.
func (e *Engine) TokenInfo(ctx context.Context, tokenStr string) (*TokenReport, error) {
	if e == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}

	typ, err := token.UnverifiedType(tokenStr)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	switch typ {
	case token.TypeRefresh:
		claims, err := e.codec.DecodeRefreshExpired(tokenStr)
		if err != nil {
			return nil, mapRevokeDecodeError(err)
		}

		report := &TokenReport{
			TokenType: string(token.TypeRefresh),
			UserID:    claims.UserID(),
			JTI:       claims.JTI(),
			FamilyID:  claims.FamilyID,
			DeviceID:  claims.DeviceID,
		}
		fillReportTimes(report, claims.IssuedAt, claims.ExpiresAt)

		revoked, err := e.ledger.IsRevoked(ctx, claims.JTI())
		if err != nil {
			return nil, errors.Join(ErrLedgerUnavailable, err)
		}
		report.Revoked = revoked
		return report, nil
	default:
		claims, err := e.codec.DecodeAccessExpired(tokenStr)
		if err != nil {
			return nil, mapRevokeDecodeError(err)
		}

		report := &TokenReport{
			TokenType: string(token.TypeAccess),
			UserID:    claims.UserID(),
			JTI:       claims.JTI(),
		}
		fillReportTimes(report, claims.IssuedAt, claims.ExpiresAt)

		revoked, err := e.cache.IsRevoked(ctx, claims.JTI())
		if err != nil {
			return nil, errors.Join(ErrCacheUnavailable, err)
		}
		report.Revoked = revoked
		return report, nil
	}
}

// Health probes the revocation cache and the ledger and reports their
// reachability. It never returns an error; unreachable backends show up as
// false flags in the result.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.cache == nil || e.ledger == nil {
		return HealthStatus{}
	}

	latency, cacheErr := e.cache.Ping(ctx)
	ledgerErr := e.ledger.Ping(ctx)

	return HealthStatus{
		CacheAvailable:  cacheErr == nil,
		CacheLatency:    latency,
		LedgerAvailable: ledgerErr == nil,
	}
}

func mapRevokeDecodeError(err error) error {
	if errors.Is(err, token.ErrTypeMismatch) {
		return ErrTokenTypeMismatch
	}
	return ErrTokenInvalid
}

func fillReportTimes(report *TokenReport, iat, exp *jwt.NumericDate) {
	if iat != nil {
		report.IssuedAt = iat.Time
	}
	if exp != nil {
		report.ExpiresAt = exp.Time
		report.Expired = time.Now().After(exp.Time)
	}
}
