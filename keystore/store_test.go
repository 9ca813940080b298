package keystore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T, cfg Config) (*Store, *FileProvider, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	t.Cleanup(func() { _ = client.Close() })

	dir := t.TempDir()
	provider := &FileProvider{
		PrivateKeyPath: filepath.Join(dir, "jwt_private.pem"),
		PublicKeyPath:  filepath.Join(dir, "jwt_public.pem"),
	}
	material, err := GenerateKeyPair(2048)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	if err := provider.Store(material); err != nil {
		t.Fatalf("provider.Store: %v", err)
	}

	if cfg.KeySize == 0 {
		cfg.KeySize = 2048
	}
	if cfg.RotationPeriod == 0 {
		cfg.RotationPeriod = 24 * time.Hour
	}
	store, err := New(provider, client, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store, provider, mr
}

func TestNewValidatesConfig(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	t.Cleanup(func() { _ = client.Close() })
	provider := &FileProvider{}

	cases := []struct {
		name string
		cfg  Config
	}{
		{"small key", Config{KeySize: 1024, RotationPeriod: time.Hour}},
		{"zero period", Config{KeySize: 2048}},
		{"overlap >= period", Config{KeySize: 2048, RotationPeriod: time.Hour, RotationOverlap: time.Hour}},
		{"negative overlap", Config{KeySize: 2048, RotationPeriod: time.Hour, RotationOverlap: -time.Minute}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(provider, client, tc.cfg); err == nil {
				t.Fatal("expected config validation error")
			}
		})
	}
}

func TestLoadAndSigningKey(t *testing.T) {
	store, _, _ := newTestStore(t, Config{})
	ctx := context.Background()

	if _, _, err := store.SigningKey(); err != ErrNoSigningKey {
		t.Fatalf("expected ErrNoSigningKey before load, got %v", err)
	}

	if err := store.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	kid, private, err := store.SigningKey()
	if err != nil {
		t.Fatalf("SigningKey: %v", err)
	}
	if kid == "" || private == nil {
		t.Fatalf("incomplete signing key: kid=%q private=%v", kid, private != nil)
	}

	pub, err := store.VerificationKey(kid)
	if err != nil {
		t.Fatalf("VerificationKey: %v", err)
	}
	if pub.N.Cmp(private.PublicKey.N) != 0 {
		t.Fatal("verification key does not match signing key")
	}

	// Empty kid maps to the current key for pre-rotation tokens.
	if _, err := store.VerificationKey(""); err != nil {
		t.Fatalf("VerificationKey with empty kid: %v", err)
	}
	if _, err := store.VerificationKey("bogus"); err != ErrUnknownKID {
		t.Fatalf("expected ErrUnknownKID, got %v", err)
	}
}

func TestRotateKeepsOldKeyDuringOverlap(t *testing.T) {
	store, provider, _ := newTestStore(t, Config{
		RotationPeriod:  24 * time.Hour,
		RotationOverlap: time.Hour,
	})
	ctx := context.Background()

	if err := store.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	oldKID, _, _ := store.SigningKey()

	if err := store.Rotate(ctx); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	newKID, _, err := store.SigningKey()
	if err != nil {
		t.Fatalf("SigningKey after rotate: %v", err)
	}
	if newKID == oldKID {
		t.Fatal("rotation should produce a new kid")
	}

	if _, err := store.VerificationKey(oldKID); err != nil {
		t.Fatalf("old kid should verify during overlap: %v", err)
	}
	if verifiers := store.Verifiers(); len(verifiers) != 2 {
		t.Fatalf("expected 2 verifiers during overlap, got %d", len(verifiers))
	}

	// Provider now holds the new pair.
	material, err := provider.Load()
	if err != nil {
		t.Fatalf("provider.Load: %v", err)
	}
	private, err := ParsePrivateKey(material.PrivatePEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	storedKID, err := Fingerprint(&private.PublicKey)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if storedKID != newKID {
		t.Fatalf("provider kid %s does not match current kid %s", storedKID, newKID)
	}
}

func TestRotateWithoutOverlapDropsOldKey(t *testing.T) {
	store, _, _ := newTestStore(t, Config{
		RotationPeriod:  24 * time.Hour,
		RotationOverlap: 0,
	})
	ctx := context.Background()

	if err := store.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	oldKID, _, _ := store.SigningKey()

	if err := store.Rotate(ctx); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	if _, err := store.VerificationKey(oldKID); err != ErrUnknownKID {
		t.Fatalf("expected ErrUnknownKID with zero overlap, got %v", err)
	}
	if verifiers := store.Verifiers(); len(verifiers) != 1 {
		t.Fatalf("expected 1 verifier, got %d", len(verifiers))
	}
}

func TestRotateArchivesOutgoingKeys(t *testing.T) {
	store, provider, _ := newTestStore(t, Config{
		RotationPeriod:  24 * time.Hour,
		RotationOverlap: time.Hour,
	})
	ctx := context.Background()

	if err := store.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := store.Rotate(ctx); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	backupDir := filepath.Join(filepath.Dir(provider.PrivateKeyPath), "backups")
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		t.Fatalf("read backup dir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected archived private and public PEM, got %d files", len(entries))
	}
}

func TestRotateMetadataFailureKeepsDeployedKey(t *testing.T) {
	store, provider, mr := newTestStore(t, Config{
		RotationPeriod:  24 * time.Hour,
		RotationOverlap: time.Hour,
	})
	ctx := context.Background()

	if err := store.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	kidBefore, _, err := store.SigningKey()
	if err != nil {
		t.Fatalf("SigningKey: %v", err)
	}

	mr.Close()
	if err := store.Rotate(ctx); err == nil {
		t.Fatal("Rotate must fail when metadata cannot be published")
	}

	kidAfter, _, err := store.SigningKey()
	if err != nil {
		t.Fatalf("SigningKey after failed rotate: %v", err)
	}
	if kidAfter != kidBefore {
		t.Fatalf("in-memory signer changed: %q -> %q", kidBefore, kidAfter)
	}

	// The on-disk pair must still be the deployed signer, not the aborted one.
	material, err := provider.Load()
	if err != nil {
		t.Fatalf("provider.Load: %v", err)
	}
	private, err := ParsePrivateKey(material.PrivatePEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	storedKID, err := Fingerprint(&private.PublicKey)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if storedKID != kidBefore {
		t.Fatalf("provider kid %s does not match deployed kid %s", storedKID, kidBefore)
	}
}

func TestOverlapKeySurvivesReload(t *testing.T) {
	store, provider, mr := newTestStore(t, Config{
		RotationPeriod:  24 * time.Hour,
		RotationOverlap: time.Hour,
	})
	ctx := context.Background()

	if err := store.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	oldKID, _, _ := store.SigningKey()
	if err := store.Rotate(ctx); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	// A second instance sharing Redis and the provider restores the
	// overlap key from metadata.
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	t.Cleanup(func() { _ = client.Close() })
	other, err := New(provider, client, Config{
		RotationPeriod:  24 * time.Hour,
		RotationOverlap: time.Hour,
		KeySize:         2048,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := other.Load(ctx); err != nil {
		t.Fatalf("second Load: %v", err)
	}

	if _, err := other.VerificationKey(oldKID); err != nil {
		t.Fatalf("second instance should serve the overlap key: %v", err)
	}
}

func TestShouldRotate(t *testing.T) {
	store, _, _ := newTestStore(t, Config{
		RotationPeriod:  24 * time.Hour,
		RotationOverlap: time.Hour,
	})
	ctx := context.Background()

	if err := store.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	// No metadata published yet.
	due, err := store.ShouldRotate(ctx)
	if err != nil {
		t.Fatalf("ShouldRotate: %v", err)
	}
	if !due {
		t.Fatal("missing metadata should count as due")
	}

	if err := store.Rotate(ctx); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	due, err = store.ShouldRotate(ctx)
	if err != nil {
		t.Fatalf("ShouldRotate after rotate: %v", err)
	}
	if due {
		t.Fatal("freshly rotated keys should not be due")
	}
}

func TestStatus(t *testing.T) {
	store, _, _ := newTestStore(t, Config{
		RotationPeriod:  24 * time.Hour,
		RotationOverlap: time.Hour,
	})
	ctx := context.Background()

	if err := store.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	oldKID, _, _ := store.SigningKey()
	if err := store.Rotate(ctx); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	newKID, _, _ := store.SigningKey()

	status, err := store.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.CurrentKID != newKID {
		t.Fatalf("CurrentKID = %s, want %s", status.CurrentKID, newKID)
	}
	if status.PreviousKID != oldKID {
		t.Fatalf("PreviousKID = %s, want %s", status.PreviousKID, oldKID)
	}
	if status.Algorithm != "RS256" || status.KeySize != 2048 {
		t.Fatalf("unexpected algorithm/size: %s/%d", status.Algorithm, status.KeySize)
	}
	if !status.OverlapActive {
		t.Fatal("overlap should be active right after rotation")
	}
	if status.RotationDue {
		t.Fatal("rotation should not be due right after rotation")
	}
	if status.BackupLocation == "" {
		t.Fatal("backup location should be recorded")
	}
}

func TestPublicKeySet(t *testing.T) {
	store, _, _ := newTestStore(t, Config{
		RotationPeriod:  24 * time.Hour,
		RotationOverlap: time.Hour,
	})
	ctx := context.Background()

	if err := store.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	set := store.PublicKeySet()
	if len(set.Keys) != 1 {
		t.Fatalf("expected 1 JWK before rotation, got %d", len(set.Keys))
	}
	kid, _, _ := store.SigningKey()
	if set.Keys[0].KeyID != kid {
		t.Fatalf("JWK kid = %s, want %s", set.Keys[0].KeyID, kid)
	}
	if set.Keys[0].Algorithm != "RS256" || set.Keys[0].Use != "sig" {
		t.Fatalf("unexpected JWK attributes: alg=%s use=%s", set.Keys[0].Algorithm, set.Keys[0].Use)
	}

	if err := store.Rotate(ctx); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	set = store.PublicKeySet()
	if len(set.Keys) != 2 {
		t.Fatalf("expected 2 JWKs during overlap, got %d", len(set.Keys))
	}
}

func TestGenerateAndParseRoundTrip(t *testing.T) {
	material, err := GenerateKeyPair(2048)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	private, err := ParsePrivateKey(material.PrivatePEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	public, err := ParsePublicKey(material.PublicPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	if private.PublicKey.N.Cmp(public.N) != 0 {
		t.Fatal("public PEM does not match private key")
	}

	fp1, err := Fingerprint(&private.PublicKey)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	fp2, err := Fingerprint(public)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if fp1 != fp2 || len(fp1) != 16 {
		t.Fatalf("fingerprints disagree or malformed: %s vs %s", fp1, fp2)
	}

	if _, err := GenerateKeyPair(1024); err == nil {
		t.Fatal("expected rejection of undersized keys")
	}
}
