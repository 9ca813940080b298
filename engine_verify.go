package goTokens

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goTokens/token"
)

// VerifyAccessToken checks signature, standard claims, and the revocation
// exclusion set. Cache outage behavior follows [RevocationConfig.FailMode]:
// fail-closed rejects with ErrCacheUnavailable, fail-open accepts on
// signature alone.
func (e *Engine) VerifyAccessToken(ctx context.Context, tokenStr string) (*AccessClaims, error) {
	if e == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricVerifyLatency, time.Since(start)) }()
	}

	claims, err := e.codec.DecodeAccess(tokenStr)
	if err != nil {
		e.metricInc(MetricVerifyFailure)
		return nil, mapDecodeError(err)
	}

	revoked, err := e.cache.IsRevoked(ctx, claims.JTI())
	if err != nil {
		if e.config.Revocation.FailMode == FailOpen {
			e.metricInc(MetricRevocationCheckSkipped)
			return accessClaimsFromToken(claims), nil
		}
		e.metricInc(MetricVerifyFailure)
		return nil, errors.Join(ErrCacheUnavailable, err)
	}
	if revoked {
		e.metricInc(MetricVerifyRevoked)
		return nil, ErrTokenRevoked
	}

	e.metricInc(MetricVerifySuccess)
	return accessClaimsFromToken(claims), nil
}

// VerifyRefreshToken checks signature, standard claims, and the ledger's
// revoked flag. It does not consume the token; rotation goes through
// [Engine.RotateRefreshToken].
func (e *Engine) VerifyRefreshToken(ctx context.Context, tokenStr string) (*RefreshClaims, error) {
	if e == nil || e.codec == nil || e.ledger == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.codec.DecodeRefresh(tokenStr)
	if err != nil {
		e.metricInc(MetricVerifyFailure)
		return nil, mapDecodeError(err)
	}

	record, err := e.ledger.Get(ctx, claims.JTI())
	if err != nil {
		e.metricInc(MetricVerifyFailure)
		return nil, errors.Join(ErrLedgerUnavailable, err)
	}
	// A valid signature over a jti the ledger never recorded means the
	// record was purged or the token was minted outside this deployment.
	if record == nil {
		e.metricInc(MetricVerifyFailure)
		return nil, ErrTokenInvalid
	}
	if record.Revoked {
		e.metricInc(MetricVerifyRevoked)
		return nil, ErrTokenRevoked
	}

	e.metricInc(MetricVerifySuccess)
	return refreshClaimsFromToken(claims), nil
}

// VerifyToken checks a token against an expected type and reports only
// validity. Callers that need claims use the typed variants.
func (e *Engine) VerifyToken(ctx context.Context, tokenStr string, typ token.Type) error {
	switch typ {
	case token.TypeAccess:
		_, err := e.VerifyAccessToken(ctx, tokenStr)
		return err
	case token.TypeRefresh:
		_, err := e.VerifyRefreshToken(ctx, tokenStr)
		return err
	default:
		return ErrTokenTypeMismatch
	}
}

func mapDecodeError(err error) error {
	switch {
	case errors.Is(err, token.ErrExpired):
		return ErrTokenExpired
	case errors.Is(err, token.ErrTypeMismatch):
		return ErrTokenTypeMismatch
	default:
		return ErrTokenInvalid
	}
}

func accessClaimsFromToken(claims *token.AccessClaims) *AccessClaims {
	out := &AccessClaims{
		UserID:      claims.UserID(),
		Email:       claims.Email,
		Role:        claims.Role,
		CompanyID:   claims.CompanyID,
		Permissions: claims.Permissions,
		JTI:         claims.JTI(),
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Unix()
	}
	if claims.NotBefore != nil {
		out.NotBefore = claims.NotBefore.Unix()
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Unix()
	}
	return out
}

func refreshClaimsFromToken(claims *token.RefreshClaims) *RefreshClaims {
	out := &RefreshClaims{
		UserID:   claims.UserID(),
		JTI:      claims.JTI(),
		FamilyID: claims.FamilyID,
		DeviceID: claims.DeviceID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Unix()
	}
	if claims.NotBefore != nil {
		out.NotBefore = claims.NotBefore.Unix()
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Unix()
	}
	return out
}
