package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/goTokens/ledger"
	"github.com/MrEthical07/goTokens/token"
)

// RotateFailureKind classifies rotation flow failures for root-level mapping.
type RotateFailureKind int

const (
	RotateFailureNone RotateFailureKind = iota
	RotateFailureDecode
	RotateFailureExpired
	RotateFailureUnknownToken
	RotateFailureReuse
	RotateFailureLedger
	RotateFailureUserLookup
	RotateFailureIssueAccess
	RotateFailureIssueRefresh
)

// UserInfo is the minimal identity snapshot rotation needs to mint the
// replacement access token.
type UserInfo struct {
	UserID      string
	Email       string
	Role        string
	CompanyID   string
	Permissions []string
}

// RotateResult carries either the replacement token pair or failure metadata.
type RotateResult struct {
	Failure  RotateFailureKind
	Err      error
	UserID   string
	JTI      string
	FamilyID string
	DeviceID string

	AccessToken  string
	AccessJTI    string
	RefreshToken string
	RefreshJTI   string
	ExpiresIn    int64
}

// RotateDeps captures rotation flow dependencies.
type RotateDeps struct {
	DecodeRefresh func(string) (*token.RefreshClaims, error)
	Consume       func(context.Context, string) (ledger.ConsumeOutcome, error)
	RevokeFamily  func(context.Context, string) error
	LookupUser    func(context.Context, string) (UserInfo, error)
	IssueAccess   func(context.Context, UserInfo) (tokenStr, jti string, expiresIn int64, err error)
	IssueRefresh  func(ctx context.Context, userID, familyID, deviceID string) (tokenStr, jti string, err error)
	Warn          func(string, ...any)
}

// RunRotate executes refresh rotation without root package dependencies.
// Order is load-bearing: the presented token is consumed before anything is
// minted, so a crash after Consume leaves the family one re-login short but
// never with two live tokens from one presentation.
func RunRotate(ctx context.Context, refreshToken string, deps RotateDeps) RotateResult {
	claims, err := deps.DecodeRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return RotateResult{Failure: RotateFailureExpired, Err: err}
		}
		return RotateResult{Failure: RotateFailureDecode, Err: err}
	}

	jti := claims.JTI()
	userID := claims.UserID()
	familyID := claims.FamilyID
	deviceID := claims.DeviceID

	outcome, err := deps.Consume(ctx, jti)
	if err != nil {
		return RotateResult{
			Failure:  RotateFailureLedger,
			Err:      err,
			UserID:   userID,
			JTI:      jti,
			FamilyID: familyID,
		}
	}
	switch outcome {
	case ledger.ConsumeAlreadyRevoked:
		// Reuse of a spent token burns the whole family.
		if revokeErr := deps.RevokeFamily(ctx, familyID); revokeErr != nil && deps.Warn != nil {
			deps.Warn("goTokens: family revocation cascade failed")
		}
		return RotateResult{
			Failure:  RotateFailureReuse,
			UserID:   userID,
			JTI:      jti,
			FamilyID: familyID,
		}
	case ledger.ConsumeNotFound:
		return RotateResult{
			Failure:  RotateFailureUnknownToken,
			UserID:   userID,
			JTI:      jti,
			FamilyID: familyID,
		}
	}

	user, err := deps.LookupUser(ctx, userID)
	if err != nil {
		return RotateResult{
			Failure:  RotateFailureUserLookup,
			Err:      err,
			UserID:   userID,
			JTI:      jti,
			FamilyID: familyID,
		}
	}

	access, accessJTI, expiresIn, err := deps.IssueAccess(ctx, user)
	if err != nil {
		return RotateResult{
			Failure:  RotateFailureIssueAccess,
			Err:      err,
			UserID:   userID,
			JTI:      jti,
			FamilyID: familyID,
		}
	}

	refresh, refreshJTI, err := deps.IssueRefresh(ctx, userID, familyID, deviceID)
	if err != nil {
		return RotateResult{
			Failure:  RotateFailureIssueRefresh,
			Err:      err,
			UserID:   userID,
			JTI:      jti,
			FamilyID: familyID,
		}
	}

	return RotateResult{
		Failure:      RotateFailureNone,
		UserID:       userID,
		JTI:          jti,
		FamilyID:     familyID,
		DeviceID:     deviceID,
		AccessToken:  access,
		AccessJTI:    accessJTI,
		RefreshToken: refresh,
		RefreshJTI:   refreshJTI,
		ExpiresIn:    expiresIn,
	}
}
