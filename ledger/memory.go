package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store with the same semantics as Postgres,
// including the single-winner Consume guarantee. Intended for tests,
// examples, and single-node development setups.
type Memory struct {
	mu      sync.Mutex
	records map[string]*Record

	// Fault injection hooks for tests.
	failCreate  error
	failConsume error
}

// NewMemory describes the newmemory operation and its observable behavior.
//
// NewMemory may return an error when input validation, dependency calls, or security checks fail.
// NewMemory does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]*Record)}
}

// FailCreate makes subsequent Create calls return err. Pass nil to clear.
func (m *Memory) FailCreate(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCreate = err
}

// FailConsume makes subsequent Consume calls return err. Pass nil to clear.
func (m *Memory) FailConsume(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failConsume = err
}

// Create describes the create operation and its observable behavior.
//
// Create may return an error when input validation, dependency calls, or security checks fail.
// Create does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Memory) Create(_ context.Context, record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failCreate != nil {
		return m.failCreate
	}
	if _, ok := m.records[record.JTI]; ok {
		return ErrDuplicateJTI
	}

	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now
	m.records[record.JTI] = &record
	return nil
}

// Get describes the get operation and its observable behavior.
//
// Get may return an error when input validation, dependency calls, or security checks fail.
// Get does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Memory) Get(_ context.Context, jti string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[jti]
	if !ok {
		return nil, nil
	}
	out := *record
	return &out, nil
}

// IsRevoked describes the isrevoked operation and its observable behavior.
//
// IsRevoked may return an error when input validation, dependency calls, or security checks fail.
// IsRevoked does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Memory) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[jti]
	if !ok {
		return false, nil
	}
	return record.Revoked, nil
}

// Consume describes the consume operation and its observable behavior.
//
// Consume may return an error when input validation, dependency calls, or security checks fail.
// Consume does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Memory) Consume(_ context.Context, jti string) (ConsumeOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failConsume != nil {
		return ConsumeNotFound, m.failConsume
	}

	record, ok := m.records[jti]
	if !ok {
		return ConsumeNotFound, nil
	}
	if record.Revoked {
		return ConsumeAlreadyRevoked, nil
	}

	record.Revoked = true
	record.UpdatedAt = time.Now()
	return ConsumeOK, nil
}

// Revoke describes the revoke operation and its observable behavior.
//
// Revoke may return an error when input validation, dependency calls, or security checks fail.
// Revoke does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Memory) Revoke(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[jti]
	if !ok {
		return false, nil
	}
	if !record.Revoked {
		record.Revoked = true
		record.UpdatedAt = time.Now()
	}
	return true, nil
}

// RevokeFamily describes the revokefamily operation and its observable behavior.
//
// RevokeFamily may return an error when input validation, dependency calls, or security checks fail.
// RevokeFamily does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Memory) RevokeFamily(_ context.Context, familyID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, record := range m.records {
		if record.FamilyID == familyID && !record.Revoked {
			record.Revoked = true
			record.UpdatedAt = time.Now()
			count++
		}
	}
	return count, nil
}

// FamilyMembers describes the familymembers operation and its observable behavior.
//
// FamilyMembers may return an error when input validation, dependency calls, or security checks fail.
// FamilyMembers does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Memory) FamilyMembers(_ context.Context, familyID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var members []string
	for jti, record := range m.records {
		if record.FamilyID == familyID {
			members = append(members, jti)
		}
	}
	sort.Strings(members)
	return members, nil
}

// UserTokens describes the usertokens operation and its observable behavior.
//
// UserTokens may return an error when input validation, dependency calls, or security checks fail.
// UserTokens does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Memory) UserTokens(_ context.Context, userID string, includeRevoked, includeExpired bool) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var records []Record
	for _, record := range m.records {
		if record.UserID != userID {
			continue
		}
		if !includeRevoked && record.Revoked {
			continue
		}
		if !includeExpired && !record.ExpiresAt.After(now) {
			continue
		}
		records = append(records, *record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// RevokeUserTokens describes the revokeusertokens operation and its observable behavior.
//
// RevokeUserTokens may return an error when input validation, dependency calls, or security checks fail.
// RevokeUserTokens does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Memory) RevokeUserTokens(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, record := range m.records {
		if record.UserID == userID && !record.Revoked {
			record.Revoked = true
			record.UpdatedAt = time.Now()
			count++
		}
	}
	return count, nil
}

// CleanupExpired describes the cleanupexpired operation and its observable behavior.
//
// CleanupExpired may return an error when input validation, dependency calls, or security checks fail.
// CleanupExpired does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Memory) CleanupExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var count int64
	for jti, record := range m.records {
		if record.ExpiresAt.Before(now) {
			delete(m.records, jti)
			count++
		}
	}
	return count, nil
}

// CleanupRevoked describes the cleanuprevoked operation and its observable behavior.
//
// CleanupRevoked may return an error when input validation, dependency calls, or security checks fail.
// CleanupRevoked does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Memory) CleanupRevoked(_ context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	var count int64
	for jti, record := range m.records {
		if record.Revoked && record.UpdatedAt.Before(cutoff) {
			delete(m.records, jti)
			count++
		}
	}
	return count, nil
}

// Ping describes the ping operation and its observable behavior.
//
// Ping may return an error when input validation, dependency calls, or security checks fail.
// Ping does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Memory) Ping(_ context.Context) error {
	return nil
}
