package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counters tracks the shared, cross-process state the Risk Engine's
// failedAttempts/userHistory/ipReputation factors need.
type Counters interface {
	// RecordFailedLogin increments the recent-failed-login counter for a
	// user. The window is fixed: it starts at the first recorded failure
	// and the count resets once it lapses.
	RecordFailedLogin(ctx context.Context, userID string) error
	// RecentFailedLogins reports how many failed logins were recorded for
	// the user within the last window.
	RecentFailedLogins(ctx context.Context, userID string) (int, error)
	// RecordIPReputation stores an observed reputation score (0-100) for
	// an IP, decaying out after window.
	RecordIPReputation(ctx context.Context, ip string, score int) error
	// IPReputationScore returns a previously recorded reputation score, or
	// (0, false, nil) if none is on record.
	IPReputationScore(ctx context.Context, ip string) (score int, found bool, err error)
}

const (
	failedLoginWindow    = 15 * time.Minute
	ipReputationWindow   = 24 * time.Hour
	failedLoginKeyPrefix = "risk:failed:"
	ipReputationPrefix   = "risk:ipscore:"
)

// RedisCounters is the go-redis-backed Counters implementation, shared
// across every server process scoring risk.
type RedisCounters struct {
	client *redis.Client
}

func NewRedisCounters(client *redis.Client) *RedisCounters {
	return &RedisCounters{client: client}
}

func (c *RedisCounters) RecordFailedLogin(ctx context.Context, userID string) error {
	key := failedLoginKeyPrefix + userID
	n, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("risk: incr failed login counter: %w", err)
	}
	if n == 1 {
		if err := c.client.Expire(ctx, key, failedLoginWindow).Err(); err != nil {
			return fmt.Errorf("risk: set failed login ttl: %w", err)
		}
	}
	return nil
}

func (c *RedisCounters) RecentFailedLogins(ctx context.Context, userID string) (int, error) {
	n, err := c.client.Get(ctx, failedLoginKeyPrefix+userID).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("risk: read failed login counter: %w", err)
	}
	return n, nil
}

func (c *RedisCounters) RecordIPReputation(ctx context.Context, ip string, score int) error {
	if err := c.client.Set(ctx, ipReputationPrefix+ip, score, ipReputationWindow).Err(); err != nil {
		return fmt.Errorf("risk: record ip reputation: %w", err)
	}
	return nil
}

func (c *RedisCounters) IPReputationScore(ctx context.Context, ip string) (int, bool, error) {
	n, err := c.client.Get(ctx, ipReputationPrefix+ip).Int()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("risk: read ip reputation: %w", err)
	}
	return n, true, nil
}

// MemoryCounters is an in-process fallback for single-process deployments
// and tests, applying the same fixed-window semantics without Redis.
type MemoryCounters struct {
	mu       sync.Mutex
	failed   map[string]counterEntry
	ipScores map[string]counterEntry
}

type counterEntry struct {
	value     int
	expiresAt time.Time
}

func NewMemoryCounters() *MemoryCounters {
	return &MemoryCounters{
		failed:   make(map[string]counterEntry),
		ipScores: make(map[string]counterEntry),
	}
}

func (c *MemoryCounters) RecordFailedLogin(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.failed[userID]
	if !ok || time.Now().After(entry.expiresAt) {
		entry = counterEntry{value: 0, expiresAt: time.Now().Add(failedLoginWindow)}
	}
	entry.value++
	c.failed[userID] = entry
	return nil
}

func (c *MemoryCounters) RecentFailedLogins(_ context.Context, userID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.failed[userID]
	if !ok || time.Now().After(entry.expiresAt) {
		return 0, nil
	}
	return entry.value, nil
}

func (c *MemoryCounters) RecordIPReputation(_ context.Context, ip string, score int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ipScores[ip] = counterEntry{value: score, expiresAt: time.Now().Add(ipReputationWindow)}
	return nil
}

func (c *MemoryCounters) IPReputationScore(_ context.Context, ip string) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.ipScores[ip]
	if !ok || time.Now().After(entry.expiresAt) {
		return 0, false, nil
	}
	return entry.value, true, nil
}
