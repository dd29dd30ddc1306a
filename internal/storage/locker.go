package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/roleplay-agent/pkg/storage"
)

const (
	lockKeyPrefix     = "session-lock:"
	lockRetryInterval = 100 * time.Millisecond
	unlockTimeout     = 5 * time.Second
)

// RedisLocker serializes turns on a session across processes with a
// SET NX PX lock. The lock holds a random token so only its owner releases it,
// and expires after ttl if the owner dies mid-turn.
type RedisLocker struct {
	client *redis.Client
	wait   time.Duration
	ttl    time.Duration
	logger *slog.Logger
}

var _ storage.Locker = (*RedisLocker)(nil)

// NewRedisLocker creates a locker. wait bounds how long Lock polls; ttl must
// exceed the longest expected turn.
func NewRedisLocker(client *redis.Client, wait, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLocker{client: client, wait: wait, ttl: ttl, logger: logger}
}

func (l *RedisLocker) Lock(ctx context.Context, id uuid.UUID) (func(), error) {
	key := lockKeyPrefix + id.String()
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire session lock: %w", err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, storage.ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}

	return func() {
		// The request context may already be cancelled; release regardless.
		ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		defer cancel()
		if err := compareAndDelete.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.Warn("Failed to release session lock", "session_id", id, "error", err)
		}
	}, nil
}

// MemoryLocker serializes turns on a session within one process. An entry
// lives only while some caller holds or waits for its lock.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*memoryLock
	wait  time.Duration
}

type memoryLock struct {
	ch   chan struct{}
	refs int
}

var _ storage.Locker = (*MemoryLocker)(nil)

// NewMemoryLocker creates an in-process locker.
func NewMemoryLocker(wait time.Duration) *MemoryLocker {
	return &MemoryLocker{locks: make(map[uuid.UUID]*memoryLock), wait: wait}
}

func (l *MemoryLocker) acquire(id uuid.UUID) *memoryLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	ml, ok := l.locks[id]
	if !ok {
		ml = &memoryLock{ch: make(chan struct{}, 1)}
		l.locks[id] = ml
	}
	ml.refs++
	return ml
}

func (l *MemoryLocker) release(id uuid.UUID, ml *memoryLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ml.refs--
	if ml.refs == 0 {
		delete(l.locks, id)
	}
}

func (l *MemoryLocker) Lock(ctx context.Context, id uuid.UUID) (func(), error) {
	ml := l.acquire(id)
	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case ml.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-ml.ch
				l.release(id, ml)
			})
		}, nil
	case <-ctx.Done():
		l.release(id, ml)
		return nil, ctx.Err()
	case <-timer.C:
		l.release(id, ml)
		return nil, storage.ErrLockTimeout
	}
}
