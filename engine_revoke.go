package goTokens

import (
	"context"
	"errors"
	"log"
	"strconv"
)

// RevokeToken revokes a single token by jti. Refresh tokens are revoked in
// the durable ledger first; the cache entry is an acceleration. Access
// tokens have no ledger row, so the cache entry bounded by the retention
// cap is the revocation itself.
func (e *Engine) RevokeToken(ctx context.Context, jti string) error {
	if e == nil || e.ledger == nil {
		return ErrEngineNotReady
	}
	if jti == "" {
		return ErrTokenInvalid
	}

	record, err := e.ledger.Get(ctx, jti)
	if err != nil {
		return errors.Join(ErrLedgerUnavailable, err)
	}

	ttl := e.config.Revocation.RetentionCap
	if record != nil {
		if _, err := e.ledger.Revoke(ctx, jti); err != nil {
			e.emitAudit(ctx, auditEventRevocationFailure, false, record.UserID, jti, record.FamilyID, ErrLedgerUnavailable, nil)
			return errors.Join(ErrLedgerUnavailable, err)
		}
		ttl = e.revocationTTL(record.ExpiresAt)
	}

	if err := e.cache.MarkRevoked(ctx, jti, ttl); err != nil {
		if record != nil {
			// Ledger revocation already holds; cache catch-up is best-effort.
			log.Print("goTokens: revocation cache write failed")
		} else {
			e.emitAudit(ctx, auditEventRevocationFailure, false, "", jti, "", ErrCacheUnavailable, nil)
			return errors.Join(ErrCacheUnavailable, err)
		}
	}
	if err := e.cache.InvalidateAccessMeta(ctx, jti); err != nil {
		log.Print("goTokens: access metadata invalidation failed")
	}

	userID, familyID := "", ""
	if record != nil {
		userID, familyID = record.UserID, record.FamilyID
	}
	e.metricInc(MetricTokenRevoked)
	e.emitAudit(ctx, auditEventTokenRevoked, true, userID, jti, familyID, nil, nil)

	return nil
}

// RevokeFamily revokes every refresh token in a rotation family. Membership
// is the union of the cache's family set and the ledger's rows, so a cache
// eviction cannot hide a descendant from the cascade.
func (e *Engine) RevokeFamily(ctx context.Context, familyID string) (int64, error) {
	if e == nil || e.ledger == nil {
		return 0, ErrEngineNotReady
	}
	if familyID == "" {
		return 0, ErrTokenInvalid
	}

	members := make(map[string]struct{})
	cached, err := e.cache.FamilyMembers(ctx, familyID)
	if err != nil {
		log.Print("goTokens: family set read failed, falling back to ledger members")
	}
	for _, jti := range cached {
		members[jti] = struct{}{}
	}

	count, err := e.ledger.RevokeFamily(ctx, familyID)
	if err != nil {
		e.emitAudit(ctx, auditEventRevocationFailure, false, "", "", familyID, ErrLedgerUnavailable, nil)
		return 0, errors.Join(ErrLedgerUnavailable, err)
	}

	ledgerMembers, err := e.ledger.FamilyMembers(ctx, familyID)
	if err != nil {
		return count, errors.Join(ErrLedgerUnavailable, err)
	}
	for _, jti := range ledgerMembers {
		members[jti] = struct{}{}
	}

	for jti := range members {
		if err := e.cache.MarkRevoked(ctx, jti, e.config.Revocation.RetentionCap); err != nil {
			log.Print("goTokens: revocation cache write failed during family cascade")
			break
		}
	}
	if err := e.cache.ClearFamily(ctx, familyID); err != nil {
		log.Print("goTokens: family set cleanup failed")
	}

	e.metricInc(MetricFamilyRevoked)
	e.emitAudit(ctx, auditEventFamilyRevoked, true, "", "", familyID, nil, func() map[string]string {
		return map[string]string{
			"revoked_count": strconv.FormatInt(count, 10),
		}
	})

	return count, nil
}

// RevokeUserTokens revokes every live refresh token belonging to a user
// across all families and devices.
func (e *Engine) RevokeUserTokens(ctx context.Context, userID string) (int64, error) {
	if e == nil || e.ledger == nil {
		return 0, ErrEngineNotReady
	}
	if userID == "" {
		return 0, ErrUserNotFound
	}

	// Snapshot live rows first so cache entries get expiry-accurate TTLs.
	records, err := e.ledger.UserTokens(ctx, userID, false, false)
	if err != nil {
		return 0, errors.Join(ErrLedgerUnavailable, err)
	}

	count, err := e.ledger.RevokeUserTokens(ctx, userID)
	if err != nil {
		e.emitAudit(ctx, auditEventRevocationFailure, false, userID, "", "", ErrLedgerUnavailable, nil)
		return 0, errors.Join(ErrLedgerUnavailable, err)
	}

	for _, record := range records {
		if err := e.cache.MarkRevoked(ctx, record.JTI, e.revocationTTL(record.ExpiresAt)); err != nil {
			log.Print("goTokens: revocation cache write failed during user revocation")
			break
		}
	}

	e.metricInc(MetricFamilyRevoked)
	e.emitAudit(ctx, auditEventUserTokensRevoked, true, userID, "", "", nil, func() map[string]string {
		return map[string]string{
			"revoked_count": strconv.FormatInt(count, 10),
		}
	})

	return count, nil
}
