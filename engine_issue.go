package goTokens

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/MrEthical07/goTokens/internal"
	"github.com/MrEthical07/goTokens/ledger"
	"github.com/MrEthical07/goTokens/revocation"
	"github.com/MrEthical07/goTokens/token"
)

// IssueAccessToken describes the issueaccesstoken operation and its observable behavior.
//
// IssueAccessToken may return an error when input validation, dependency calls, or security checks fail.
// IssueAccessToken does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) IssueAccessToken(ctx context.Context, input AccessTokenInput) (*IssuedAccessToken, error) {
	if e == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}
	if input.UserID == "" {
		return nil, ErrUserNotFound
	}

	jti := internal.NewTokenID()
	ttl := e.accessTTLForRole(input.Role)

	signed, err := e.codec.EncodeAccess(token.AccessPayload{
		UserID:      input.UserID,
		Email:       input.Email,
		Role:        input.Role,
		CompanyID:   input.CompanyID,
		Permissions: input.Permissions,
	}, jti, ttl)
	if err != nil {
		e.metricInc(MetricIssueFailure)
		e.emitAudit(ctx, auditEventIssueFailure, false, input.UserID, jti, "", err, func() map[string]string {
			return map[string]string{
				"token_type": "access",
				"reason":     "encode_failed",
			}
		})
		return nil, err
	}

	// Metadata is best-effort: introspection degrades, verification does not.
	if err := e.cache.SetAccessMeta(ctx, jti, revocation.AccessMeta{
		UserID:    input.UserID,
		TokenType: string(token.TypeAccess),
		Valid:     true,
	}, ttl); err != nil {
		log.Print("goTokens: access token metadata write failed")
	}

	e.metricInc(MetricAccessIssued)
	e.emitAudit(ctx, auditEventAccessIssued, true, input.UserID, jti, "", nil, func() map[string]string {
		return map[string]string{
			"role": input.Role,
		}
	})

	return &IssuedAccessToken{
		Token:     signed,
		JTI:       jti,
		ExpiresIn: int64(ttl.Seconds()),
	}, nil
}

// IssueRefreshToken mints a refresh token and records it in the durable
// ledger. An empty familyID starts a new rotation family whose id equals the
// first token's jti. Ledger failures abort issuance: an untracked refresh
// token could never be revoked.
func (e *Engine) IssueRefreshToken(ctx context.Context, userID, familyID string) (*IssuedRefreshToken, error) {
	if e == nil || e.codec == nil || e.ledger == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, ErrUserNotFound
	}

	jti := internal.NewTokenID()
	if familyID == "" {
		familyID = jti
	}
	deviceID := deviceIDFromContext(ctx)
	ttl := e.config.JWT.RefreshTTL

	signed, err := e.codec.EncodeRefresh(userID, jti, familyID, deviceID, ttl)
	if err != nil {
		e.metricInc(MetricIssueFailure)
		e.emitAudit(ctx, auditEventIssueFailure, false, userID, jti, familyID, err, func() map[string]string {
			return map[string]string{
				"token_type": "refresh",
				"reason":     "encode_failed",
			}
		})
		return nil, err
	}

	record := ledger.Record{
		JTI:       jti,
		UserID:    userID,
		TokenHash: internal.HashToken(signed),
		FamilyID:  familyID,
		DeviceID:  deviceID,
		ExpiresAt: time.Now().Add(ttl),
	}
	if err := e.ledger.Create(ctx, record); err != nil {
		e.metricInc(MetricIssueFailure)
		e.emitAudit(ctx, auditEventIssueFailure, false, userID, jti, familyID, ErrLedgerUnavailable, func() map[string]string {
			return map[string]string{
				"token_type": "refresh",
				"reason":     "ledger_create_failed",
			}
		})
		if errors.Is(err, ledger.ErrDuplicateJTI) {
			return nil, err
		}
		return nil, errors.Join(ErrLedgerUnavailable, err)
	}

	// Family membership is a cache hint for cascades; the ledger can always
	// rebuild it.
	if err := e.cache.AddToFamily(ctx, familyID, jti, ttl); err != nil {
		log.Print("goTokens: family set update failed")
	}

	e.metricInc(MetricRefreshIssued)
	e.emitAudit(ctx, auditEventRefreshIssued, true, userID, jti, familyID, nil, nil)

	return &IssuedRefreshToken{
		Token:    signed,
		JTI:      jti,
		FamilyID: familyID,
	}, nil
}

// IssueTokenPair describes the issuetokenpair operation and its observable behavior.
//
// IssueTokenPair may return an error when input validation, dependency calls, or security checks fail.
// IssueTokenPair does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) IssueTokenPair(ctx context.Context, input AccessTokenInput) (*TokenPair, error) {
	access, err := e.IssueAccessToken(ctx, input)
	if err != nil {
		return nil, err
	}

	refresh, err := e.IssueRefreshToken(ctx, input.UserID, "")
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventTokenPairIssued, true, input.UserID, access.JTI, refresh.FamilyID, nil, nil)

	return &TokenPair{
		AccessToken:  access.Token,
		RefreshToken: refresh.Token,
		AccessJTI:    access.JTI,
		RefreshJTI:   refresh.JTI,
		FamilyID:     refresh.FamilyID,
		ExpiresIn:    access.ExpiresIn,
	}, nil
}
