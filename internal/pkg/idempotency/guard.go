// Package idempotency 防止同一个业务请求被重复执行。
package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"marketplace/internal/pkg/redis"
)

const keyPrefix = "idempotency:"

// RedisGuard 基于 SET NX 实现；key 在 ttl 后自动过期。
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl}
}

// Acquire 返回 true 表示本次调用首次占用该 key。
func (g *RedisGuard) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.GetClient().SetNX(ctx, keyPrefix+key, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "acquire idempotency key %s", key)
	}
	return ok, nil
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	if err := g.client.GetClient().Del(ctx, keyPrefix+key).Err(); err != nil {
		return errors.Wrapf(err, "release idempotency key %s", key)
	}
	return nil
}

// MemoryGuard 是进程内实现，用于本地运行和测试。
type MemoryGuard struct {
	mu   sync.Mutex
	ttl  time.Duration
	keys map[string]time.Time
	now  func() time.Time
}

func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	return &MemoryGuard{ttl: ttl, keys: make(map[string]time.Time), now: time.Now}
}

func (g *MemoryGuard) Acquire(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if expires, ok := g.keys[key]; ok && (g.ttl <= 0 || now.Before(expires)) {
		return false, nil
	}
	g.keys[key] = now.Add(g.ttl)
	return true, nil
}

func (g *MemoryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, key)
	return nil
}
