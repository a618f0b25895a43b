// Package lease provides short exclusive leases so a schedule entry is processed
// by at most one tick at a time, in one process or across instances.
package lease

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "payment-scheduler:lease:"

// MemoryLocker is a process-local lease table.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]memoryLease
	tokens uint64
	now    func() time.Time
}

type memoryLease struct {
	token     uint64
	expiresAt time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{leases: map[string]memoryLease{}, now: time.Now}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if held, ok := l.leases[key]; ok && now.Before(held.expiresAt) {
		return nil, false, nil
	}

	l.tokens++
	token := l.tokens

	l.leases[key] = memoryLease{token: token, expiresAt: now.Add(ttl)}
	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		// An expired lease may already belong to someone else.
		if held, ok := l.leases[key]; ok && held.token == token {
			delete(l.leases, key)
		}
	}
	return release, true, nil
}

// releaseScript deletes the key only while it still holds our token.
// KEYS[1] = lease key
// ARGV[1] = token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker shares leases between engine instances through Redis.
type RedisLocker struct {
	client *redis.Client
	logger logrus.FieldLogger
}

func NewRedisLocker(addr, password string, db int, logger logrus.FieldLogger) *RedisLocker {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisLocker{client: rdb, logger: logger}
}

// Ping verifies the connection at startup.
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *RedisLocker) Close() error {
	return l.client.Close()
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	fullKey := keyPrefix + key

	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lease error: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// The tick's context may already be done; releasing must still happen.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{fullKey}, token).Err(); err != nil {
			l.logger.WithError(err).WithField("key", key).Warn("Failed to release lease, it will expire on its own")
		}
	}
	return release, true, nil
}
