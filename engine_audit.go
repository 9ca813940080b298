package goTokens

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventAccessIssued       = "access_token_issued"
	auditEventRefreshIssued      = "refresh_token_issued"
	auditEventTokenPairIssued    = "token_pair_issued"
	auditEventRefreshRotated     = "refresh_rotated"
	auditEventRotationReuse      = "rotation_reuse_detected"
	auditEventRotationFailure    = "rotation_failure"
	auditEventTokenRevoked       = "token_revoked"
	auditEventFamilyRevoked      = "family_revoked"
	auditEventUserTokensRevoked  = "user_tokens_revoked"
	auditEventKeyRotation        = "key_rotation"
	auditEventCleanupExpired     = "cleanup_expired"
	auditEventCleanupRevoked     = "cleanup_revoked"
	auditEventIssueFailure       = "issue_failure"
	auditEventRevocationFailure  = "revocation_failure"
	auditEventKeyRotationFailure = "key_rotation_failure"
)

// AuditErrorCode defines a public type used by goTokens APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrInvalidToken      AuditErrorCode = "invalid_token"
	auditErrExpiredToken      AuditErrorCode = "expired_token"
	auditErrRevokedToken      AuditErrorCode = "revoked_token"
	auditErrTypeMismatch      AuditErrorCode = "type_mismatch"
	auditErrTokenReuse        AuditErrorCode = "token_reuse"
	auditErrUserNotFound      AuditErrorCode = "user_not_found"
	auditErrLedgerUnavailable AuditErrorCode = "ledger_unavailable"
	auditErrCacheUnavailable  AuditErrorCode = "cache_unavailable"
	auditErrKeyRotation       AuditErrorCode = "key_rotation_failed"
	auditErrInternal          AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	jti string,
	familyID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		JTI:       jti,
		FamilyID:  familyID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrTokenReuse):
		return auditErrTokenReuse
	case errors.Is(err, ErrTokenRevoked):
		return auditErrRevokedToken
	case errors.Is(err, ErrTokenExpired):
		return auditErrExpiredToken
	case errors.Is(err, ErrTokenTypeMismatch):
		return auditErrTypeMismatch
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrLedgerUnavailable):
		return auditErrLedgerUnavailable
	case errors.Is(err, ErrCacheUnavailable):
		return auditErrCacheUnavailable
	case errors.Is(err, ErrKeyRotationFailed):
		return auditErrKeyRotation
	default:
		return auditErrInternal
	}
}
