package goTokens

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goTokens/ledger"
)

func TestRotateRefreshToken(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()
	pair := issueTestPair(t, engine, "u1")

	rotated, err := engine.RotateRefreshToken(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("RotateRefreshToken: %v", err)
	}
	if rotated.FamilyID != pair.FamilyID {
		t.Fatalf("rotation must stay in the family: %s vs %s", rotated.FamilyID, pair.FamilyID)
	}
	if rotated.RefreshJTI == pair.RefreshJTI {
		t.Fatal("rotation must mint a new refresh jti")
	}

	// The consumed token is dead, the replacement is live.
	if _, err := engine.VerifyRefreshToken(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("consumed token should be revoked, got %v", err)
	}
	if _, err := engine.VerifyRefreshToken(ctx, rotated.RefreshToken); err != nil {
		t.Fatalf("replacement should verify: %v", err)
	}
	if _, err := engine.VerifyAccessToken(ctx, rotated.AccessToken); err != nil {
		t.Fatalf("new access token should verify: %v", err)
	}
}

func TestRotateRefreshTokenCarriesDeviceID(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := WithDeviceID(context.Background(), "device-7")

	issued, err := engine.IssueRefreshToken(ctx, "u1", "")
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}

	rotated, err := engine.RotateRefreshToken(context.Background(), issued.Token)
	if err != nil {
		t.Fatalf("RotateRefreshToken: %v", err)
	}
	claims, err := engine.VerifyRefreshToken(context.Background(), rotated.RefreshToken)
	if err != nil {
		t.Fatalf("VerifyRefreshToken: %v", err)
	}
	if claims.DeviceID != "device-7" {
		t.Fatalf("device id should survive rotation, got %q", claims.DeviceID)
	}
}

func TestRotateReuseDetectionBurnsFamily(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()
	pair := issueTestPair(t, engine, "u1")

	rotated, err := engine.RotateRefreshToken(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("first rotation: %v", err)
	}

	// Replaying the consumed token is theft evidence.
	if _, err := engine.RotateRefreshToken(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenReuse) {
		t.Fatalf("expected ErrTokenReuse, got %v", err)
	}

	// The cascade killed the legitimate descendant too.
	if _, err := engine.VerifyRefreshToken(ctx, rotated.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("descendant should be revoked after reuse, got %v", err)
	}
	if _, err := engine.RotateRefreshToken(ctx, rotated.RefreshToken); !errors.Is(err, ErrTokenReuse) {
		t.Fatalf("rotating a burned descendant should report reuse, got %v", err)
	}
}

func TestRotateExpiredRefreshToken(t *testing.T) {
	engine, _ := newTestEngine(t, func(cfg *Config) {
		cfg.JWT.AccessTTL = 10 * time.Millisecond
		cfg.JWT.PrivilegedAccessTTL = 10 * time.Millisecond
		cfg.JWT.RefreshTTL = 30 * time.Millisecond
	})
	ctx := context.Background()

	issued, err := engine.IssueRefreshToken(ctx, "u1", "")
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	time.Sleep(60 * time.Millisecond)

	if _, err := engine.RotateRefreshToken(ctx, issued.Token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestRotateGarbageToken(t *testing.T) {
	engine, _ := newTestEngine(t, nil)

	if _, err := engine.RotateRefreshToken(context.Background(), "not-a-jwt"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestRotateUnknownToken(t *testing.T) {
	engine, deps := newTestEngine(t, nil)
	pair := issueTestPair(t, engine, "u1")

	// Valid signature, no ledger row on the second instance.
	other := buildEngine(t, DefaultConfig(), deps, ledger.NewMemory())
	if _, err := other.RotateRefreshToken(context.Background(), pair.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestRotateLedgerOutage(t *testing.T) {
	engine, deps := newTestEngine(t, nil)
	ctx := context.Background()
	pair := issueTestPair(t, engine, "u1")

	deps.ledger.FailConsume(ledger.ErrUnavailable)
	if _, err := engine.RotateRefreshToken(ctx, pair.RefreshToken); !errors.Is(err, ErrLedgerUnavailable) {
		t.Fatalf("expected ErrLedgerUnavailable, got %v", err)
	}

	// The token was not consumed; rotation works once the ledger recovers.
	deps.ledger.FailConsume(nil)
	if _, err := engine.RotateRefreshToken(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("rotation after recovery: %v", err)
	}
}

func TestRotateUserLookupFailure(t *testing.T) {
	engine, deps := newTestEngine(t, nil)
	ctx := context.Background()
	pair := issueTestPair(t, engine, "u1")

	delete(deps.users, "u1")
	if _, err := engine.RotateRefreshToken(ctx, pair.RefreshToken); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestRotateConcurrentSingleWinner(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()
	pair := issueTestPair(t, engine, "u1")

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.RotateRefreshToken(ctx, pair.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, reuses int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrTokenReuse):
			reuses++
		default:
			t.Fatalf("unexpected rotation error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly 1 successful rotation, got %d", wins)
	}
	if reuses != workers-1 {
		t.Fatalf("expected %d reuse rejections, got %d", workers-1, reuses)
	}
}
