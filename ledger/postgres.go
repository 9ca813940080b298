package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolationCode = "23505"

// Postgres is the production Store backed by a pgx connection pool.
//
// Expected schema:
//
//	CREATE TABLE refresh_tokens (
//	    id         TEXT PRIMARY KEY,
//	    user_id    TEXT NOT NULL,
//	    token_hash TEXT NOT NULL,
//	    family_id  TEXT NOT NULL,
//	    device_id  TEXT NOT NULL DEFAULT '',
//	    expires_at TIMESTAMPTZ NOT NULL,
//	    revoked    BOOLEAN NOT NULL DEFAULT FALSE,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//	CREATE INDEX refresh_tokens_user_idx ON refresh_tokens (user_id);
//	CREATE INDEX refresh_tokens_family_idx ON refresh_tokens (family_id);
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres describes the newpostgres operation and its observable behavior.
//
// NewPostgres may return an error when input validation, dependency calls, or security checks fail.
// NewPostgres does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewPostgres(pool *pgxpool.Pool) (*Postgres, error) {
	if pool == nil {
		return nil, errors.New("pgx pool required")
	}
	return &Postgres{pool: pool}, nil
}

// Create describes the create operation and its observable behavior.
//
// Create may return an error when input validation, dependency calls, or security checks fail.
// Create does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *Postgres) Create(ctx context.Context, record Record) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, family_id, device_id, expires_at, revoked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, now(), now())`,
		record.JTI, record.UserID, record.TokenHash, record.FamilyID, record.DeviceID, record.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return ErrDuplicateJTI
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Get describes the get operation and its observable behavior.
//
// Get may return an error when input validation, dependency calls, or security checks fail.
// Get does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *Postgres) Get(ctx context.Context, jti string) (*Record, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, family_id, device_id, expires_at, revoked, created_at, updated_at
		FROM refresh_tokens WHERE id = $1`, jti)

	var record Record
	err := row.Scan(
		&record.JTI, &record.UserID, &record.TokenHash, &record.FamilyID, &record.DeviceID,
		&record.ExpiresAt, &record.Revoked, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &record, nil
}

// IsRevoked reports whether the row exists and is revoked. A missing row is
// not revoked; unknown tokens are rejected earlier by signature and Consume
// checks.
func (p *Postgres) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := p.pool.QueryRow(ctx,
		`SELECT revoked FROM refresh_tokens WHERE id = $1`, jti,
	).Scan(&revoked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return revoked, nil
}

// Consume atomically claims a token for rotation. The conditional UPDATE is
// the whole point: two concurrent rotations of the same jti race on one
// statement and the database picks exactly one winner.
func (p *Postgres) Consume(ctx context.Context, jti string) (ConsumeOutcome, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE, updated_at = now()
		WHERE id = $1 AND revoked = FALSE`, jti)
	if err != nil {
		return ConsumeNotFound, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if tag.RowsAffected() == 1 {
		return ConsumeOK, nil
	}

	var exists bool
	err = p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE id = $1)`, jti,
	).Scan(&exists)
	if err != nil {
		return ConsumeNotFound, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if exists {
		return ConsumeAlreadyRevoked, nil
	}
	return ConsumeNotFound, nil
}

// Revoke describes the revoke operation and its observable behavior.
//
// Revoke may return an error when input validation, dependency calls, or security checks fail.
// Revoke does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *Postgres) Revoke(ctx context.Context, jti string) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE, updated_at = now()
		WHERE id = $1`, jti)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return tag.RowsAffected() > 0, nil
}

// RevokeFamily describes the revokefamily operation and its observable behavior.
//
// RevokeFamily may return an error when input validation, dependency calls, or security checks fail.
// RevokeFamily does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *Postgres) RevokeFamily(ctx context.Context, familyID string) (int64, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE, updated_at = now()
		WHERE family_id = $1 AND revoked = FALSE`, familyID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return tag.RowsAffected(), nil
}

// FamilyMembers describes the familymembers operation and its observable behavior.
//
// FamilyMembers may return an error when input validation, dependency calls, or security checks fail.
// FamilyMembers does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *Postgres) FamilyMembers(ctx context.Context, familyID string) ([]string, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id FROM refresh_tokens WHERE family_id = $1`, familyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var jti string
		if err := rows.Scan(&jti); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		members = append(members, jti)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return members, nil
}

// UserTokens describes the usertokens operation and its observable behavior.
//
// UserTokens may return an error when input validation, dependency calls, or security checks fail.
// UserTokens does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *Postgres) UserTokens(ctx context.Context, userID string, includeRevoked, includeExpired bool) ([]Record, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT id, user_id, token_hash, family_id, device_id, expires_at, revoked, created_at, updated_at
		FROM refresh_tokens WHERE user_id = $1`)
	if !includeRevoked {
		sb.WriteString(` AND revoked = FALSE`)
	}
	if !includeExpired {
		sb.WriteString(` AND expires_at > now()`)
	}
	sb.WriteString(` ORDER BY created_at DESC`)

	rows, err := p.pool.Query(ctx, sb.String(), userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var record Record
		err := rows.Scan(
			&record.JTI, &record.UserID, &record.TokenHash, &record.FamilyID, &record.DeviceID,
			&record.ExpiresAt, &record.Revoked, &record.CreatedAt, &record.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return records, nil
}

// RevokeUserTokens describes the revokeusertokens operation and its observable behavior.
//
// RevokeUserTokens may return an error when input validation, dependency calls, or security checks fail.
// RevokeUserTokens does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *Postgres) RevokeUserTokens(ctx context.Context, userID string) (int64, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE, updated_at = now()
		WHERE user_id = $1 AND revoked = FALSE`, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return tag.RowsAffected(), nil
}

// CleanupExpired describes the cleanupexpired operation and its observable behavior.
//
// CleanupExpired may return an error when input validation, dependency calls, or security checks fail.
// CleanupExpired does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *Postgres) CleanupExpired(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return tag.RowsAffected(), nil
}

// CleanupRevoked describes the cleanuprevoked operation and its observable behavior.
//
// CleanupRevoked may return an error when input validation, dependency calls, or security checks fail.
// CleanupRevoked does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *Postgres) CleanupRevoked(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM refresh_tokens WHERE revoked = TRUE AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return tag.RowsAffected(), nil
}

// Ping describes the ping operation and its observable behavior.
//
// Ping may return an error when input validation, dependency calls, or security checks fail.
// Ping does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
