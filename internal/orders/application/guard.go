package application

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// PollGuard allows at most one active poller per external order id. The
// same guard key may be requested by both the payment-confirmation path and
// a UI-level retry; only the first acquisition wins.
type PollGuard interface {
	Acquire(ctx context.Context, externalID string) (release func(), acquired bool, err error)
}

// MemoryGuard is the in-process guard for single-instance deployments.
type MemoryGuard struct {
	active sync.Map
}

// NewMemoryGuard constructs an in-process guard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{}
}

// Acquire reserves the order for one poller.
func (g *MemoryGuard) Acquire(_ context.Context, externalID string) (func(), bool, error) {
	if _, loaded := g.active.LoadOrStore(externalID, struct{}{}); loaded {
		return nil, false, nil
	}
	return func() { g.active.Delete(externalID) }, true, nil
}

// RedisGuard is a distributed guard for multi-instance deployments.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisGuard constructs a redis-backed guard. The TTL bounds lock
// lifetime if a process dies mid-poll.
func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisGuard{client: client, ttl: ttl}
}

// Acquire takes the distributed lock for the order.
func (g *RedisGuard) Acquire(ctx context.Context, externalID string) (func(), bool, error) {
	if g == nil || g.client == nil {
		return nil, false, nil
	}
	key := "poller:lock:" + externalID
	ok, err := g.client.SetNX(ctx, key, 1, g.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		_ = g.client.Del(context.Background(), key).Err()
	}
	return release, true, nil
}
