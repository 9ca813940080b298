package goTokens

import (
	"context"
	"errors"
	"testing"
)

func TestRevokeTokenRefresh(t *testing.T) {
	engine, deps := newTestEngine(t, nil)
	ctx := context.Background()
	pair := issueTestPair(t, engine, "u1")

	if err := engine.RevokeToken(ctx, pair.RefreshJTI); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}

	if _, err := engine.VerifyRefreshToken(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}
	revoked, err := deps.ledger.IsRevoked(ctx, pair.RefreshJTI)
	if err != nil || !revoked {
		t.Fatalf("ledger row should be revoked: revoked=%v err=%v", revoked, err)
	}
}

func TestRevokeTokenAccess(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	issued, err := engine.IssueAccessToken(ctx, accessInputFor(engine, "u1"))
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	// No ledger row exists for an access jti; the cache entry is the
	// revocation itself.
	if err := engine.RevokeToken(ctx, issued.JTI); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if _, err := engine.VerifyAccessToken(ctx, issued.Token); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}
}

func TestRevokeTokenEmptyJTI(t *testing.T) {
	engine, _ := newTestEngine(t, nil)

	if err := engine.RevokeToken(context.Background(), ""); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestRevokeTokenAccessCacheOutage(t *testing.T) {
	engine, deps := newTestEngine(t, nil)
	deps.mr.Close()

	// With no ledger row, a failed cache write means the revocation did not
	// take hold anywhere.
	if err := engine.RevokeToken(context.Background(), "access-jti"); !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("expected ErrCacheUnavailable, got %v", err)
	}
}

func TestRevokeTokenRefreshSurvivesCacheOutage(t *testing.T) {
	engine, deps := newTestEngine(t, nil)
	ctx := context.Background()
	pair := issueTestPair(t, engine, "u1")

	// Ledger revocation is authoritative for refresh tokens; the cache write
	// is an acceleration.
	deps.mr.Close()
	if err := engine.RevokeToken(ctx, pair.RefreshJTI); err != nil {
		t.Fatalf("RevokeToken should tolerate cache outage: %v", err)
	}
	revoked, err := deps.ledger.IsRevoked(ctx, pair.RefreshJTI)
	if err != nil || !revoked {
		t.Fatalf("ledger row should be revoked: revoked=%v err=%v", revoked, err)
	}
}

func TestRevokeFamily(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	first, err := engine.IssueRefreshToken(ctx, "u1", "")
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	second, err := engine.IssueRefreshToken(ctx, "u1", first.FamilyID)
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}

	count, err := engine.RevokeFamily(ctx, first.FamilyID)
	if err != nil {
		t.Fatalf("RevokeFamily: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 revoked, got %d", count)
	}

	if _, err := engine.VerifyRefreshToken(ctx, first.Token); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("first member should be revoked, got %v", err)
	}
	if _, err := engine.VerifyRefreshToken(ctx, second.Token); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("second member should be revoked, got %v", err)
	}
}

func TestRevokeFamilyEmptyID(t *testing.T) {
	engine, _ := newTestEngine(t, nil)

	if _, err := engine.RevokeFamily(context.Background(), ""); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestRevokeFamilyUsesLedgerWhenCacheEvicted(t *testing.T) {
	engine, deps := newTestEngine(t, nil)
	ctx := context.Background()

	first, err := engine.IssueRefreshToken(ctx, "u1", "")
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	second, err := engine.IssueRefreshToken(ctx, "u1", first.FamilyID)
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}

	// Simulate cache eviction of the family set; the ledger still knows the
	// membership.
	deps.mr.Del("token_family:" + first.FamilyID)

	count, err := engine.RevokeFamily(ctx, first.FamilyID)
	if err != nil {
		t.Fatalf("RevokeFamily: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 revoked via ledger membership, got %d", count)
	}
	if _, err := engine.VerifyRefreshToken(ctx, second.Token); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("evicted member should still be revoked, got %v", err)
	}
}

func TestRevokeUserTokens(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	// Two families for u1, one for the admin.
	u1a, err := engine.IssueRefreshToken(ctx, "u1", "")
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	u1b, err := engine.IssueRefreshToken(ctx, "u1", "")
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	admin, err := engine.IssueRefreshToken(ctx, "admin-1", "")
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}

	count, err := engine.RevokeUserTokens(ctx, "u1")
	if err != nil {
		t.Fatalf("RevokeUserTokens: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 revoked, got %d", count)
	}

	if _, err := engine.VerifyRefreshToken(ctx, u1a.Token); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("u1 token should be revoked, got %v", err)
	}
	if _, err := engine.VerifyRefreshToken(ctx, u1b.Token); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("u1 token should be revoked, got %v", err)
	}
	if _, err := engine.VerifyRefreshToken(ctx, admin.Token); err != nil {
		t.Fatalf("other user's token must survive: %v", err)
	}
}

func TestRevokeUserTokensEmptyUser(t *testing.T) {
	engine, _ := newTestEngine(t, nil)

	if _, err := engine.RevokeUserTokens(context.Background(), ""); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
