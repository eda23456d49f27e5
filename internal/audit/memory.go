package audit

import (
	"context"
	"sync"
	"time"
)

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityError:    2,
	SeverityCritical: 3,
}

// MemoryLog is an in-memory, optionally hash-chained Log for tests and
// local development.
type MemoryLog struct {
	mu          sync.Mutex
	events      []*Event
	chainHashes bool
	lastHash    string
}

func NewMemoryLog(chainHashes bool) *MemoryLog {
	return &MemoryLog{chainHashes: chainHashes}
}

func (m *MemoryLog) Append(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	prev := ""
	if m.chainHashes {
		prev = m.lastHash
	}
	hash, err := computeHash(e, prev)
	if err != nil {
		return err
	}
	e.EventHash = hash
	e.PreviousEventHash = prev

	cp := *e
	m.events = append(m.events, &cp)
	if m.chainHashes {
		m.lastHash = hash
	}
	return nil
}

func (m *MemoryLog) FindByUser(_ context.Context, userID string, limit int) ([]*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Event
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if m.events[i].UserID == userID {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

func (m *MemoryLog) FindBySession(_ context.Context, sessionID string, limit int) ([]*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Event
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if m.events[i].SessionID == sessionID {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

func (m *MemoryLog) FindByType(_ context.Context, eventType EventType, limit int) ([]*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Event
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if m.events[i].EventType == eventType {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

func (m *MemoryLog) FindBySeverityInWindow(_ context.Context, minSeverity Severity, windowSeconds, limit int) ([]*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-time.Duration(windowSeconds) * time.Second)
	minRank := severityRank[minSeverity]
	var out []*Event
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.events[i]
		if e.CreatedAt.Before(cutoff) {
			continue
		}
		if severityRank[e.EventSeverity] >= minRank {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryLog) VerifyChain(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return verifyChainEvents(m.events, m.chainHashes)
}

func (m *MemoryLog) Recent(_ context.Context, limit int) ([]*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.events)
	if limit > n {
		limit = n
	}
	out := make([]*Event, limit)
	for i := 0; i < limit; i++ {
		out[i] = m.events[n-1-i]
	}
	return out, nil
}
