package keystore

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultMetadataKey = "jwt:key:metadata"

var (
	// ErrNoSigningKey is an exported constant or variable used by the keystore.
	ErrNoSigningKey = errors.New("no signing key loaded")
	// ErrUnknownKID is an exported constant or variable used by the keystore.
	ErrUnknownKID = errors.New("unknown key id")
	// ErrMetadataUnavailable is an exported constant or variable used by the keystore.
	ErrMetadataUnavailable = errors.New("rotation metadata unavailable")
)

// Config defines a public type used by goTokens APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	RotationPeriod  time.Duration
	RotationOverlap time.Duration
	KeySize         int
	MetadataKey     string
}

// VerifyKey is one public key admitted for signature verification.
type VerifyKey struct {
	KID string
	Key *rsa.PublicKey
}

// RotationStatus is a read-only snapshot of the key rotation state.
type RotationStatus struct {
	CurrentKID     string
	PreviousKID    string
	Algorithm      string
	KeySize        int
	RotatedAt      time.Time
	NextRotation   time.Time
	OverlapUntil   time.Time
	BackupLocation string
	OverlapActive  bool
	RotationDue    bool
}

// rotationMetadata is the JSON record kept in Redis so every instance agrees
// on the rotation schedule and the overlap verification key.
type rotationMetadata struct {
	CurrentKID        string    `json:"current_kid"`
	PreviousKID       string    `json:"previous_kid,omitempty"`
	PreviousPublicPEM string    `json:"previous_public_pem,omitempty"`
	Algorithm         string    `json:"algorithm"`
	KeySize           int       `json:"key_size"`
	RotatedAt         time.Time `json:"rotated_at"`
	NextRotation      time.Time `json:"next_rotation"`
	OverlapUntil      time.Time `json:"overlap_until,omitempty"`
	BackupLocation    string    `json:"backup_location,omitempty"`
}

type signingKey struct {
	kid     string
	private *rsa.PrivateKey
	public  *rsa.PublicKey
}

type overlapKey struct {
	kid     string
	public  *rsa.PublicKey
	expires time.Time
}

// Store defines a public type used by goTokens APIs.
//
// Store instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Store struct {
	provider Provider
	redis    redis.UniversalClient
	config   Config

	mu       sync.RWMutex
	current  *signingKey
	previous *overlapKey
	material Material
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New(provider Provider, redisClient redis.UniversalClient, cfg Config) (*Store, error) {
	if provider == nil {
		return nil, errors.New("key provider required")
	}
	if redisClient == nil {
		return nil, errors.New("redis client required")
	}
	if cfg.KeySize < 2048 {
		return nil, errors.New("key size must be >= 2048 bits")
	}
	if cfg.RotationPeriod <= 0 {
		return nil, errors.New("rotation period must be > 0")
	}
	if cfg.RotationOverlap < 0 || cfg.RotationOverlap >= cfg.RotationPeriod {
		return nil, errors.New("rotation overlap must be >= 0 and < rotation period")
	}
	if cfg.MetadataKey == "" {
		cfg.MetadataKey = defaultMetadataKey
	}

	return &Store{
		provider: provider,
		redis:    redisClient,
		config:   cfg,
	}, nil
}

// Load reads the current key pair from the provider and restores overlap
// state from the rotation metadata record. Metadata is advisory: when Redis
// is unreachable the current key still loads, only the previous verification
// key is lost until the next rotation.
func (s *Store) Load(ctx context.Context) error {
	material, err := s.provider.Load()
	if err != nil {
		return err
	}

	private, err := ParsePrivateKey(material.PrivatePEM)
	if err != nil {
		return err
	}
	kid, err := Fingerprint(&private.PublicKey)
	if err != nil {
		return err
	}

	var previous *overlapKey
	meta, metaErr := s.fetchMetadata(ctx)
	switch {
	case metaErr != nil:
		log.Print("goTokens: rotation metadata fetch failed, overlap key unavailable")
	case meta != nil && meta.PreviousPublicPEM != "" && time.Now().Before(meta.OverlapUntil):
		pub, parseErr := ParsePublicKey([]byte(meta.PreviousPublicPEM))
		if parseErr != nil {
			log.Print("goTokens: previous public key in rotation metadata is invalid")
		} else {
			previous = &overlapKey{
				kid:     meta.PreviousKID,
				public:  pub,
				expires: meta.OverlapUntil,
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &signingKey{kid: kid, private: private, public: &private.PublicKey}
	s.previous = previous
	s.material = material

	return nil
}

// SigningKey describes the signingkey operation and its observable behavior.
//
// SigningKey may return an error when input validation, dependency calls, or security checks fail.
// SigningKey does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) SigningKey() (string, *rsa.PrivateKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return "", nil, ErrNoSigningKey
	}
	return s.current.kid, s.current.private, nil
}

// VerificationKey resolves a kid header to a public key. An empty kid maps
// to the current key; the previous key is served only inside its overlap
// window.
func (s *Store) VerificationKey(kid string) (*rsa.PublicKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return nil, ErrNoSigningKey
	}
	if kid == "" || kid == s.current.kid {
		return s.current.public, nil
	}
	if s.previous != nil && kid == s.previous.kid && time.Now().Before(s.previous.expires) {
		return s.previous.public, nil
	}
	return nil, ErrUnknownKID
}

// Verifiers describes the verifiers operation and its observable behavior.
//
// Verifiers may return an error when input validation, dependency calls, or security checks fail.
// Verifiers does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) Verifiers() []VerifyKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []VerifyKey
	if s.current != nil {
		out = append(out, VerifyKey{KID: s.current.kid, Key: s.current.public})
	}
	if s.previous != nil && time.Now().Before(s.previous.expires) {
		out = append(out, VerifyKey{KID: s.previous.kid, Key: s.previous.public})
	}
	return out
}

// Rotate mints a new key pair, archives and replaces the current one, and
// publishes rotation metadata so other instances pick up the overlap key.
// The old public key keeps verifying existing tokens until the overlap
// window closes.
func (s *Store) Rotate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return ErrNoSigningKey
	}

	fresh, err := GenerateKeyPair(s.config.KeySize)
	if err != nil {
		return fmt.Errorf("key rotation: %w", err)
	}
	private, err := ParsePrivateKey(fresh.PrivatePEM)
	if err != nil {
		return fmt.Errorf("key rotation: %w", err)
	}
	kid, err := Fingerprint(&private.PublicKey)
	if err != nil {
		return fmt.Errorf("key rotation: %w", err)
	}

	backupLocation, err := s.provider.Archive(s.material)
	if err != nil {
		return fmt.Errorf("key rotation backup: %w", err)
	}

	// Metadata is published before the on-disk swap: a failed publish leaves
	// the deployed signer untouched, while swapping first would lose the
	// overlap record on the next restart.
	now := time.Now()
	meta := rotationMetadata{
		CurrentKID:        kid,
		PreviousKID:       s.current.kid,
		PreviousPublicPEM: string(s.material.PublicPEM),
		Algorithm:         "RS256",
		KeySize:           s.config.KeySize,
		RotatedAt:         now,
		NextRotation:      now.Add(s.config.RotationPeriod),
		OverlapUntil:      now.Add(s.config.RotationOverlap),
		BackupLocation:    backupLocation,
	}
	if err := s.storeMetadata(ctx, meta); err != nil {
		return err
	}
	if err := s.provider.Store(fresh); err != nil {
		return fmt.Errorf("key rotation store: %w", err)
	}

	s.previous = &overlapKey{
		kid:     s.current.kid,
		public:  s.current.public,
		expires: meta.OverlapUntil,
	}
	s.current = &signingKey{kid: kid, private: private, public: &private.PublicKey}
	s.material = fresh

	return nil
}

// ShouldRotate reports whether the rotation schedule is due. Missing
// metadata counts as due so a freshly provisioned deployment publishes its
// schedule on the first rotation.
func (s *Store) ShouldRotate(ctx context.Context) (bool, error) {
	meta, err := s.fetchMetadata(ctx)
	if err != nil {
		return false, err
	}
	if meta == nil {
		return true, nil
	}
	return !time.Now().Before(meta.NextRotation), nil
}

// Status describes the status operation and its observable behavior.
//
// Status may return an error when input validation, dependency calls, or security checks fail.
// Status does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) Status(ctx context.Context) (RotationStatus, error) {
	s.mu.RLock()
	currentKID := ""
	if s.current != nil {
		currentKID = s.current.kid
	}
	s.mu.RUnlock()

	status := RotationStatus{
		CurrentKID:  currentKID,
		Algorithm:   "RS256",
		KeySize:     s.config.KeySize,
		RotationDue: true,
	}

	meta, err := s.fetchMetadata(ctx)
	if err != nil {
		return RotationStatus{}, err
	}
	if meta == nil {
		return status, nil
	}

	now := time.Now()
	status.PreviousKID = meta.PreviousKID
	status.RotatedAt = meta.RotatedAt
	status.NextRotation = meta.NextRotation
	status.OverlapUntil = meta.OverlapUntil
	status.BackupLocation = meta.BackupLocation
	status.OverlapActive = meta.PreviousKID != "" && now.Before(meta.OverlapUntil)
	status.RotationDue = !now.Before(meta.NextRotation)

	return status, nil
}

func (s *Store) fetchMetadata(ctx context.Context) (*rotationMetadata, error) {
	data, err := s.redis.Get(ctx, s.config.MetadataKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrMetadataUnavailable, err)
	}

	var meta rotationMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataUnavailable, err)
	}
	return &meta, nil
}

func (s *Store) storeMetadata(ctx context.Context, meta rotationMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	ttl := s.config.RotationPeriod + s.config.RotationOverlap
	if err := s.redis.Set(ctx, s.config.MetadataKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrMetadataUnavailable, err)
	}
	return nil
}
