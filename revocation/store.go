package revocation

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	revokedKeyPrefix = "revoked:"
	familyKeyPrefix  = "token_family:"
	metaKeyPrefix    = "token:"

	metaRecordVersionV1 = 1
)

var (
	// ErrUnavailable is an exported constant or variable used by the revocation cache.
	ErrUnavailable = errors.New("revocation cache unavailable")
	// ErrMetaNotFound is an exported constant or variable used by the revocation cache.
	ErrMetaNotFound = errors.New("token metadata not found")
)

// AccessMeta is the cached sidecar record for an issued access token. It
// exists for introspection and targeted invalidation; the token itself is
// never stored.
type AccessMeta struct {
	UserID    string
	TokenType string
	Valid     bool
}

// Store defines a public type used by goTokens APIs.
//
// Store instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Store struct {
	redis redis.UniversalClient
}

// NewStore describes the newstore operation and its observable behavior.
//
// NewStore may return an error when input validation, dependency calls, or security checks fail.
// NewStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewStore(redisClient redis.UniversalClient) *Store {
	return &Store{redis: redisClient}
}

// MarkRevoked adds a jti to the exclusion set. The TTL bounds how long the
// entry lives; it must cover the token's remaining lifetime, after which the
// token rejects itself by expiry.
func (s *Store) MarkRevoked(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, revokedKeyPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// IsRevoked describes the isrevoked operation and its observable behavior.
//
// IsRevoked may return an error when input validation, dependency calls, or security checks fail.
// IsRevoked does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.redis.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

// AddToFamily records a refresh token jti in its family set so a reuse
// cascade can sweep every descendant without a ledger scan.
func (s *Store) AddToFamily(ctx context.Context, familyID, jti string, ttl time.Duration) error {
	key := familyKeyPrefix + familyID

	pipe := s.redis.TxPipeline()
	pipe.SAdd(ctx, key, jti)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// FamilyMembers describes the familymembers operation and its observable behavior.
//
// FamilyMembers may return an error when input validation, dependency calls, or security checks fail.
// FamilyMembers does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) FamilyMembers(ctx context.Context, familyID string) ([]string, error) {
	members, err := s.redis.SMembers(ctx, familyKeyPrefix+familyID).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return members, nil
}

// ClearFamily describes the clearfamily operation and its observable behavior.
//
// ClearFamily may return an error when input validation, dependency calls, or security checks fail.
// ClearFamily does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) ClearFamily(ctx context.Context, familyID string) error {
	if err := s.redis.Del(ctx, familyKeyPrefix+familyID).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// SetAccessMeta describes the setaccessmeta operation and its observable behavior.
//
// SetAccessMeta may return an error when input validation, dependency calls, or security checks fail.
// SetAccessMeta does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) SetAccessMeta(ctx context.Context, jti string, meta AccessMeta, ttl time.Duration) error {
	encoded, err := encodeAccessMeta(meta)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, metaKeyPrefix+jti, encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// GetAccessMeta describes the getaccessmeta operation and its observable behavior.
//
// GetAccessMeta may return an error when input validation, dependency calls, or security checks fail.
// GetAccessMeta does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) GetAccessMeta(ctx context.Context, jti string) (*AccessMeta, error) {
	data, err := s.redis.Get(ctx, metaKeyPrefix+jti).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMetaNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return decodeAccessMeta(data)
}

// InvalidateAccessMeta flips the cached metadata record to invalid while
// preserving its remaining TTL. Missing records are a no-op: the exclusion
// set entry is the authoritative revocation signal.
func (s *Store) InvalidateAccessMeta(ctx context.Context, jti string) error {
	key := metaKeyPrefix + jti

	meta, err := s.GetAccessMeta(ctx, jti)
	if err != nil {
		if errors.Is(err, ErrMetaNotFound) {
			return nil
		}
		return err
	}

	ttl, err := s.redis.TTL(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if ttl <= 0 {
		return nil
	}

	meta.Valid = false
	encoded, err := encodeAccessMeta(*meta)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, key, encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Ping describes the ping operation and its observable behavior.
//
// Ping may return an error when input validation, dependency calls, or security checks fail.
// Ping does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}

func encodeAccessMeta(meta AccessMeta) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(metaRecordVersionV1)
	if meta.Valid {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	if len(meta.UserID) > 65535 {
		return nil, errors.New("access meta user id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(meta.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(meta.UserID)

	if len(meta.TokenType) > 255 {
		return nil, errors.New("access meta token type too long")
	}
	buf.WriteByte(byte(len(meta.TokenType)))
	buf.WriteString(meta.TokenType)

	return buf.Bytes(), nil
}

func decodeAccessMeta(data []byte) (*AccessMeta, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != metaRecordVersionV1 {
		return nil, errors.New("invalid access meta version")
	}

	valid, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	var userIDLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userIDLen); err != nil {
		return nil, err
	}
	userID := make([]byte, userIDLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}

	meta := &AccessMeta{
		UserID: string(userID),
		Valid:  valid == 1,
	}

	// Records written before the token type field end here.
	typeLen, err := reader.ReadByte()
	if errors.Is(err, io.EOF) {
		return meta, nil
	}
	if err != nil {
		return nil, err
	}
	tokenType := make([]byte, typeLen)
	if _, err := io.ReadFull(reader, tokenType); err != nil {
		return nil, err
	}
	meta.TokenType = string(tokenType)

	return meta, nil
}
