package goTokens

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestUserTokens(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	first, err := engine.IssueRefreshToken(ctx, "u1", "")
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	second, err := engine.IssueRefreshToken(ctx, "u1", "")
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	if err := engine.RevokeToken(ctx, second.JTI); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}

	records, err := engine.UserTokens(ctx, "u1", false, false)
	if err != nil {
		t.Fatalf("UserTokens: %v", err)
	}
	if len(records) != 1 || records[0].JTI != first.JTI {
		t.Fatalf("expected only the live token, got %+v", records)
	}

	records, err = engine.UserTokens(ctx, "u1", true, true)
	if err != nil {
		t.Fatalf("UserTokens: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	if _, err := engine.UserTokens(ctx, "", false, false); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for empty user, got %v", err)
	}
}

func TestCleanupExpiredTokens(t *testing.T) {
	engine, _ := newTestEngine(t, func(cfg *Config) {
		cfg.JWT.AccessTTL = 10 * time.Millisecond
		cfg.JWT.PrivilegedAccessTTL = 10 * time.Millisecond
		cfg.JWT.RefreshTTL = 30 * time.Millisecond
	})
	ctx := context.Background()

	if _, err := engine.IssueRefreshToken(ctx, "u1", ""); err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	time.Sleep(60 * time.Millisecond)

	count, err := engine.CleanupExpiredTokens(ctx)
	if err != nil {
		t.Fatalf("CleanupExpiredTokens: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 purged row, got %d", count)
	}
}

func TestCleanupRevokedTokensHonorsRetention(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	issued, err := engine.IssueRefreshToken(ctx, "u1", "")
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	if err := engine.RevokeToken(ctx, issued.JTI); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}

	// The row was revoked moments ago; the retention cap keeps it so its jti
	// can still back cache entries.
	count, err := engine.CleanupRevokedTokens(ctx)
	if err != nil {
		t.Fatalf("CleanupRevokedTokens: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 purged rows inside retention, got %d", count)
	}
}

func TestRotateSigningKeysKeepsOldTokensVerifiable(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	before, err := engine.IssueAccessToken(ctx, accessInputFor(engine, "u1"))
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	if err := engine.RotateSigningKeys(ctx); err != nil {
		t.Fatalf("RotateSigningKeys: %v", err)
	}

	// Overlap window: tokens signed by the outgoing key still verify.
	if _, err := engine.VerifyAccessToken(ctx, before.Token); err != nil {
		t.Fatalf("pre-rotation token should verify during overlap: %v", err)
	}

	after, err := engine.IssueAccessToken(ctx, accessInputFor(engine, "u1"))
	if err != nil {
		t.Fatalf("IssueAccessToken after rotation: %v", err)
	}
	if _, err := engine.VerifyAccessToken(ctx, after.Token); err != nil {
		t.Fatalf("post-rotation token should verify: %v", err)
	}

	if set := engine.PublicKeySet(); len(set.Keys) != 2 {
		t.Fatalf("expected 2 JWKs during overlap, got %d", len(set.Keys))
	}
}

func TestShouldRotateSigningKeys(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	// No rotation metadata published yet.
	due, err := engine.ShouldRotateSigningKeys(ctx)
	if err != nil {
		t.Fatalf("ShouldRotateSigningKeys: %v", err)
	}
	if !due {
		t.Fatal("fresh deployment should be due")
	}

	if err := engine.RotateSigningKeys(ctx); err != nil {
		t.Fatalf("RotateSigningKeys: %v", err)
	}
	due, err = engine.ShouldRotateSigningKeys(ctx)
	if err != nil {
		t.Fatalf("ShouldRotateSigningKeys: %v", err)
	}
	if due {
		t.Fatal("freshly rotated keys should not be due")
	}
}

func TestKeyRotationStatus(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	if err := engine.RotateSigningKeys(ctx); err != nil {
		t.Fatalf("RotateSigningKeys: %v", err)
	}

	status, err := engine.KeyRotationStatus(ctx)
	if err != nil {
		t.Fatalf("KeyRotationStatus: %v", err)
	}
	if status.CurrentKID == "" || status.PreviousKID == "" {
		t.Fatalf("both kids should be reported: %+v", status)
	}
	if status.CurrentKID == status.PreviousKID {
		t.Fatal("rotation must change the kid")
	}
	if !status.OverlapActive {
		t.Fatal("overlap should be active right after rotation")
	}
}
