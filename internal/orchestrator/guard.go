package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard hands out a claim per key at most once.
type Guard interface {
	Claim(ctx context.Context, key, owner string) (bool, error)
}

// RedisGuard claims keys with SET NX so that a creation event is orchestrated
// once across every replica sharing the Redis instance.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisGuard builds a guard whose claims expire after ttl.
func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl}
}

func (g *RedisGuard) Claim(ctx context.Context, key, owner string) (bool, error) {
	return g.client.SetNX(ctx, key, owner, g.ttl).Result()
}

// DefaultGuardTTL bounds a claim when no TTL is configured.
const DefaultGuardTTL = 24 * time.Hour

// MemoryGuard claims keys within a single process. Claims expire after the
// TTL and expired entries are swept at most once per TTL.
type MemoryGuard struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	claims    map[string]time.Time
	lastSweep time.Time
}

// NewMemoryGuard builds an empty guard. A non-positive ttl uses DefaultGuardTTL.
func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	if ttl <= 0 {
		ttl = DefaultGuardTTL
	}
	return &MemoryGuard{
		ttl:    ttl,
		now:    time.Now,
		claims: make(map[string]time.Time),
	}
}

func (g *MemoryGuard) Claim(_ context.Context, key, _ string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now.Sub(g.lastSweep) >= g.ttl {
		g.sweep(now)
	}
	if expiresAt, ok := g.claims[key]; ok && now.Before(expiresAt) {
		return false, nil
	}
	g.claims[key] = now.Add(g.ttl)
	return true, nil
}

// Len reports how many claims are currently held, expired or not.
func (g *MemoryGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.claims)
}

func (g *MemoryGuard) sweep(now time.Time) {
	for key, expiresAt := range g.claims {
		if !now.Before(expiresAt) {
			delete(g.claims, key)
		}
	}
	g.lastSweep = now
}

func createdKey(ticketID string) string {
	return "orchestration:" + ticketID + ":created"
}
