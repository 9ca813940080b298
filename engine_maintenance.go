package goTokens

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/goTokens/keystore"
	"github.com/MrEthical07/goTokens/ledger"
	"github.com/go-jose/go-jose/v4"
)

// TokenRecord is the safe ledger view returned by [Engine.UserTokens].
// It intentionally excludes the token hash.
type TokenRecord struct {
	JTI       string
	UserID    string
	FamilyID  string
	DeviceID  string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// UserTokens describes the usertokens operation and its observable behavior.
//
// UserTokens may return an error when input validation, dependency calls, or security checks fail.
// UserTokens does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) UserTokens(ctx context.Context, userID string, includeRevoked, includeExpired bool) ([]TokenRecord, error) {
	if e == nil || e.ledger == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, ErrUserNotFound
	}

	records, err := e.ledger.UserTokens(ctx, userID, includeRevoked, includeExpired)
	if err != nil {
		return nil, errors.Join(ErrLedgerUnavailable, err)
	}

	out := make([]TokenRecord, 0, len(records))
	for _, record := range records {
		out = append(out, toTokenRecord(record))
	}
	return out, nil
}

// CleanupExpiredTokens deletes ledger rows whose tokens can no longer verify.
// Intended to run on a schedule from the embedding service.
func (e *Engine) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	if e == nil || e.ledger == nil {
		return 0, ErrEngineNotReady
	}

	count, err := e.ledger.CleanupExpired(ctx)
	if err != nil {
		return 0, errors.Join(ErrLedgerUnavailable, err)
	}

	e.metricInc(MetricCleanupExpired)
	e.emitAudit(ctx, auditEventCleanupExpired, true, "", "", "", nil, func() map[string]string {
		return map[string]string{
			"deleted_count": strconv.FormatInt(count, 10),
		}
	})
	return count, nil
}

// CleanupRevokedTokens deletes revoked rows older than the retention cap.
// Rows younger than the cap stay: their jtis may still back cache entries.
func (e *Engine) CleanupRevokedTokens(ctx context.Context) (int64, error) {
	if e == nil || e.ledger == nil {
		return 0, ErrEngineNotReady
	}

	count, err := e.ledger.CleanupRevoked(ctx, e.config.Revocation.RetentionCap)
	if err != nil {
		return 0, errors.Join(ErrLedgerUnavailable, err)
	}

	e.metricInc(MetricCleanupRevoked)
	e.emitAudit(ctx, auditEventCleanupRevoked, true, "", "", "", nil, func() map[string]string {
		return map[string]string{
			"deleted_count": strconv.FormatInt(count, 10),
		}
	})
	return count, nil
}

// RotateSigningKeys mints a new RSA pair and swaps it in. Tokens signed by
// the outgoing key keep verifying until the overlap window closes; tokens
// minted after the swap carry the new kid.
func (e *Engine) RotateSigningKeys(ctx context.Context) error {
	if e == nil || e.keys == nil {
		return ErrEngineNotReady
	}

	if err := e.keys.Rotate(ctx); err != nil {
		e.metricInc(MetricKeyRotationFailure)
		e.emitAudit(ctx, auditEventKeyRotationFailure, false, "", "", "", ErrKeyRotationFailed, nil)
		return errors.Join(ErrKeyRotationFailed, err)
	}

	e.metricInc(MetricKeyRotation)
	e.emitAudit(ctx, auditEventKeyRotation, true, "", "", "", nil, nil)
	return nil
}

// ShouldRotateSigningKeys describes the shouldrotatesigningkeys operation and its observable behavior.
//
// ShouldRotateSigningKeys may return an error when input validation, dependency calls, or security checks fail.
// ShouldRotateSigningKeys does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ShouldRotateSigningKeys(ctx context.Context) (bool, error) {
	if e == nil || e.keys == nil {
		return false, ErrEngineNotReady
	}
	return e.keys.ShouldRotate(ctx)
}

// KeyRotationStatus describes the keyrotationstatus operation and its observable behavior.
//
// KeyRotationStatus may return an error when input validation, dependency calls, or security checks fail.
// KeyRotationStatus does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) KeyRotationStatus(ctx context.Context) (keystore.RotationStatus, error) {
	if e == nil || e.keys == nil {
		return keystore.RotationStatus{}, ErrEngineNotReady
	}
	return e.keys.Status(ctx)
}

// PublicKeySet returns the JWKS document covering every key currently
// admitted for verification, suitable for serving at a jwks.json endpoint.
func (e *Engine) PublicKeySet() jose.JSONWebKeySet {
	if e == nil || e.keys == nil {
		return jose.JSONWebKeySet{}
	}
	return e.keys.PublicKeySet()
}

func toTokenRecord(record ledger.Record) TokenRecord {
	return TokenRecord{
		JTI:       record.JTI,
		UserID:    record.UserID,
		FamilyID:  record.FamilyID,
		DeviceID:  record.DeviceID,
		ExpiresAt: record.ExpiresAt,
		Revoked:   record.Revoked,
		CreatedAt: record.CreatedAt,
	}
}
