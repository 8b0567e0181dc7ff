package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"escrow_engine/internal/logger"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Locker serializes work per transaction id. Concurrent triggers for the
// same transaction (webhook replay, manual retry, scheduled re-drive) must
// not interleave transitions.
type Locker interface {
	// Acquire blocks until the lock for key is held or ctx is done.
	// The returned func releases the lock.
	Acquire(ctx context.Context, key string) (func(), error)
}

// MemoryLocker is a per-process keyed semaphore. Sufficient for a single
// engine instance; multi-instance deployments use RedisLocker.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewMemoryLocker creates an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]chan struct{})}
}

func (m *MemoryLocker) Acquire(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = make(chan struct{}, 1)
		m.locks[key] = l
	}
	m.mu.Unlock()

	select {
	case l <- struct{}{}:
		return func() { <-l }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RedisLocker holds locks as SET NX keys with a TTL, so a crashed holder
// cannot block a transaction forever. Release only deletes the key when the
// stored token still matches.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker creates a distributed locker.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, retry: 50 * time.Millisecond}
}

func (r *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := "engine:lock:" + key
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, lockKey, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retry):
		}
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		val, err := r.client.Get(ctx, lockKey).Result()
		if err != nil || val != token {
			// expired or taken over; deleting would release someone else's lock
			return
		}
		if err := r.client.Del(ctx, lockKey).Err(); err != nil {
			logger.Error("failed to release transaction lock", "key", key, "error", err)
		}
	}
	return release, nil
}
