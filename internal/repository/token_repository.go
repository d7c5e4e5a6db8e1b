package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// TokenBlacklist 记录已注销但尚未过期的 token。
type TokenBlacklist interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// 只保存 token 的摘要
func blacklistKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "blacklist:" + hex.EncodeToString(sum[:])
}

type redisTokenBlacklist struct {
	rdb *redis.Client
}

// NewRedisTokenBlacklist 创建基于 Redis 的黑名单，条目随 token 过期自动删除。
func NewRedisTokenBlacklist(rdb *redis.Client) TokenBlacklist {
	return &redisTokenBlacklist{rdb: rdb}
}

func (b *redisTokenBlacklist) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return b.rdb.Set(ctx, blacklistKey(token), "1", ttl).Err()
}

func (b *redisTokenBlacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := b.rdb.Exists(ctx, blacklistKey(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type memoryTokenBlacklist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryTokenBlacklist 在未配置 Redis 时使用，只在单进程内有效。
func NewMemoryTokenBlacklist() TokenBlacklist {
	return &memoryTokenBlacklist{entries: make(map[string]time.Time), now: time.Now}
}

func (b *memoryTokenBlacklist) Revoke(_ context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	for k, exp := range b.entries {
		if !now.Before(exp) {
			delete(b.entries, k)
		}
	}
	b.entries[blacklistKey(token)] = now.Add(ttl)
	return nil
}

func (b *memoryTokenBlacklist) IsRevoked(_ context.Context, token string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	exp, ok := b.entries[blacklistKey(token)]
	return ok && b.now().Before(exp), nil
}
