package user

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is an in-memory Repository for tests and local
// development.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string // email -> id
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

// Seed inserts a user directly, storing a copy exactly as Save does.
// Used by tests and bootstrap tooling.
func (m *MemoryRepository) Seed(u *User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.byID[u.ID] = &cp
	m.byEmail[u.Email] = u.ID
}

func (m *MemoryRepository) FindByID(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryRepository) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.byID[id]
	return &cp, nil
}

func (m *MemoryRepository) UpdatePasswordHash(_ context.Context, id, hash string, changedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	u.PasswordChangedAt = changedAt
	u.UpdatedAt = changedAt
	return nil
}

func (m *MemoryRepository) AddKnownDevice(_ context.Context, id, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	if !u.HasKnownDevice(fingerprint) {
		u.KnownDeviceHashes = append(u.KnownDeviceHashes, fingerprint)
	}
	return nil
}

func (m *MemoryRepository) ConsumeBackupCode(_ context.Context, id, codeHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	for i := range u.BackupCodes {
		if u.BackupCodes[i].CodeHash == codeHash && u.BackupCodes[i].ConsumedAt == nil {
			u.BackupCodes[i].ConsumedAt = &now
			break
		}
	}
	return nil
}

func (m *MemoryRepository) Save(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.byID[u.ID] = &cp
	m.byEmail[u.Email] = u.ID
	return nil
}
