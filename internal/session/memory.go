package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used in tests and local development.
type MemoryStore struct {
	mu        sync.RWMutex
	byID      map[string]*Session
	byAccess  map[string]string // accessTokenJti -> session id
	byRefresh map[string]string // refreshTokenJti -> session id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:      make(map[string]*Session),
		byAccess:  make(map[string]string),
		byRefresh: make(map[string]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[s.ID]; ok {
		return ErrAlreadyExists
	}
	cp := *s
	m.byID[s.ID] = &cp
	if s.AccessTokenJTI != "" {
		m.byAccess[s.AccessTokenJTI] = s.ID
	}
	if s.RefreshTokenJTI != "" {
		m.byRefresh[s.RefreshTokenJTI] = s.ID
	}
	return nil
}

func (m *MemoryStore) FindByID(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) FindByAccessTokenJTI(ctx context.Context, jti string) (*Session, error) {
	m.mu.RLock()
	id, ok := m.byAccess[jti]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	s, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.Usable(time.Now()) {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) FindByRefreshTokenJTI(ctx context.Context, jti string) (*Session, error) {
	m.mu.RLock()
	id, ok := m.byRefresh[jti]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.FindByID(ctx, id)
}

func (m *MemoryStore) FindActiveByUserID(_ context.Context, userID string) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	var out []*Session
	for _, s := range m.byID {
		if s.UserID == userID && s.Usable(now) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) UpdateLastActivity(_ context.Context, sessionID string, when time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.LastActivityAt = when
	s.UpdatedAt = when
	return nil
}

func (m *MemoryStore) UpdateRiskScore(_ context.Context, sessionID string, score int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.RiskScore = score
	s.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) UpdateJTIs(_ context.Context, sessionID, accessJTI, refreshJTI string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[sessionID]
	if !ok {
		return ErrNotFound
	}
	delete(m.byAccess, s.AccessTokenJTI)
	delete(m.byRefresh, s.RefreshTokenJTI)
	s.AccessTokenJTI = accessJTI
	s.RefreshTokenJTI = refreshJTI
	s.UpdatedAt = time.Now()
	if accessJTI != "" {
		m.byAccess[accessJTI] = sessionID
	}
	if refreshJTI != "" {
		m.byRefresh[refreshJTI] = sessionID
	}
	return nil
}

func (m *MemoryStore) RevokeSession(_ context.Context, sessionID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[sessionID]
	if !ok {
		return ErrNotFound
	}
	if s.Revoked() {
		return nil
	}
	now := time.Now()
	s.RevokedAt = &now
	s.RevokedReason = reason
	s.IsActive = false
	s.UpdatedAt = now
	return nil
}

func (m *MemoryStore) TryRevokeSession(_ context.Context, sessionID, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[sessionID]
	if !ok {
		return false, ErrNotFound
	}
	if s.Revoked() {
		return false, nil
	}
	now := time.Now()
	s.RevokedAt = &now
	s.RevokedReason = reason
	s.IsActive = false
	s.UpdatedAt = now
	return true, nil
}

func (m *MemoryStore) RevokeAllUserSessions(ctx context.Context, userID, reason string) (int, error) {
	m.mu.Lock()
	ids := make([]string, 0)
	for _, s := range m.byID {
		if s.UserID == userID && !s.Revoked() {
			ids = append(ids, s.ID)
		}
	}
	m.mu.Unlock()

	count := 0
	for _, id := range ids {
		if err := m.RevokeSession(ctx, id, reason); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (m *MemoryStore) RevokeByFamily(ctx context.Context, tokenFamily, reason string) (int, error) {
	m.mu.Lock()
	ids := make([]string, 0)
	for _, s := range m.byID {
		if s.TokenFamily == tokenFamily && !s.Revoked() {
			ids = append(ids, s.ID)
		}
	}
	m.mu.Unlock()

	count := 0
	for _, id := range ids {
		if err := m.RevokeSession(ctx, id, reason); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (m *MemoryStore) CleanupExpiredSessions(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	removed := 0
	for id, s := range m.byID {
		if s.ExpiresAt.Before(now) {
			delete(m.byAccess, s.AccessTokenJTI)
			delete(m.byRefresh, s.RefreshTokenJTI)
			delete(m.byID, id)
			removed++
		}
	}
	return removed, nil
}
