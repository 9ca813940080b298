package goTokens

import (
	"context"
	"errors"
	"log"

	"github.com/MrEthical07/goTokens/internal/flows"
)

// RotateRefreshToken consumes the presented refresh token and mints a
// replacement pair in the same family. Presenting an already-consumed token
// is treated as theft evidence: the whole family is revoked and the caller
// gets ErrTokenReuse.
func (e *Engine) RotateRefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.codec == nil || e.ledger == nil || e.userProvider == nil {
		return nil, ErrEngineNotReady
	}

	result := flows.RunRotate(ctx, refreshToken, flows.RotateDeps{
		DecodeRefresh: e.codec.DecodeRefresh,
		Consume:       e.ledger.Consume,
		RevokeFamily: func(ctx context.Context, familyID string) error {
			_, err := e.RevokeFamily(ctx, familyID)
			return err
		},
		LookupUser: func(ctx context.Context, userID string) (flows.UserInfo, error) {
			user, err := e.userProvider.GetUserByID(ctx, userID)
			if err != nil {
				return flows.UserInfo{}, err
			}
			return flows.UserInfo{
				UserID:      user.UserID,
				Email:       user.Email,
				Role:        user.Role,
				CompanyID:   user.CompanyID,
				Permissions: user.Permissions,
			}, nil
		},
		IssueAccess: func(ctx context.Context, user flows.UserInfo) (string, string, int64, error) {
			access, err := e.IssueAccessToken(ctx, AccessTokenInput{
				UserID:      user.UserID,
				Email:       user.Email,
				Role:        user.Role,
				CompanyID:   user.CompanyID,
				Permissions: user.Permissions,
			})
			if err != nil {
				return "", "", 0, err
			}
			return access.Token, access.JTI, access.ExpiresIn, nil
		},
		IssueRefresh: func(ctx context.Context, userID, familyID, deviceID string) (string, string, error) {
			refresh, err := e.IssueRefreshToken(WithDeviceID(ctx, deviceID), userID, familyID)
			if err != nil {
				return "", "", err
			}
			return refresh.Token, refresh.JTI, nil
		},
		Warn: log.Printf,
	})

	switch result.Failure {
	case flows.RotateFailureNone:
		e.metricInc(MetricRotateSuccess)
		e.emitAudit(ctx, auditEventRefreshRotated, true, result.UserID, result.RefreshJTI, result.FamilyID, nil, func() map[string]string {
			return map[string]string{
				"consumed_jti": result.JTI,
			}
		})
		return &TokenPair{
			AccessToken:  result.AccessToken,
			RefreshToken: result.RefreshToken,
			AccessJTI:    result.AccessJTI,
			RefreshJTI:   result.RefreshJTI,
			FamilyID:     result.FamilyID,
			ExpiresIn:    result.ExpiresIn,
		}, nil

	case flows.RotateFailureReuse:
		e.metricInc(MetricReuseDetected)
		e.metricInc(MetricRotateFailure)
		e.emitAudit(ctx, auditEventRotationReuse, false, result.UserID, result.JTI, result.FamilyID, ErrTokenReuse, nil)
		return nil, ErrTokenReuse

	case flows.RotateFailureExpired:
		e.metricInc(MetricRotateFailure)
		e.emitAudit(ctx, auditEventRotationFailure, false, result.UserID, result.JTI, result.FamilyID, ErrTokenExpired, func() map[string]string {
			return map[string]string{
				"reason": "expired",
			}
		})
		return nil, ErrTokenExpired

	case flows.RotateFailureDecode:
		e.metricInc(MetricRotateFailure)
		e.emitAudit(ctx, auditEventRotationFailure, false, "", "", "", ErrTokenInvalid, func() map[string]string {
			return map[string]string{
				"reason": "decode_failed",
			}
		})
		return nil, mapDecodeError(result.Err)

	case flows.RotateFailureUnknownToken:
		e.metricInc(MetricRotateFailure)
		e.emitAudit(ctx, auditEventRotationFailure, false, result.UserID, result.JTI, result.FamilyID, ErrTokenInvalid, func() map[string]string {
			return map[string]string{
				"reason": "unknown_token",
			}
		})
		return nil, ErrTokenInvalid

	case flows.RotateFailureLedger:
		e.metricInc(MetricRotateFailure)
		e.emitAudit(ctx, auditEventRotationFailure, false, result.UserID, result.JTI, result.FamilyID, ErrLedgerUnavailable, func() map[string]string {
			return map[string]string{
				"reason": "ledger_unavailable",
			}
		})
		return nil, errors.Join(ErrLedgerUnavailable, result.Err)

	case flows.RotateFailureUserLookup:
		e.metricInc(MetricRotateFailure)
		e.emitAudit(ctx, auditEventRotationFailure, false, result.UserID, result.JTI, result.FamilyID, ErrUserNotFound, func() map[string]string {
			return map[string]string{
				"reason": "user_lookup_failed",
			}
		})
		return nil, ErrUserNotFound

	default:
		e.metricInc(MetricRotateFailure)
		e.emitAudit(ctx, auditEventRotationFailure, false, result.UserID, result.JTI, result.FamilyID, result.Err, func() map[string]string {
			return map[string]string{
				"reason": "issue_failed",
			}
		})
		return nil, result.Err
	}
}
