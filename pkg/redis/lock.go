package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLockHeld is returned when a lock could not be taken before the wait ran out.
var ErrLockHeld = errors.New("redis: lock held by another holder")

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Lock is a held SET NX PX lock.
type Lock struct {
	rdb   redis.Cmdable
	key   string
	token string
}

// Locker takes short-lived mutual exclusion locks on keys.
type Locker struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	retry  time.Duration
	logger *zap.Logger
}

// NewLocker creates a Locker. ttl bounds how long a crashed holder can block others.
func NewLocker(rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *Locker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locker{rdb: rdb, ttl: ttl, retry: 50 * time.Millisecond, logger: logger}
}

// Acquire takes the lock on key, retrying until ctx is done.
func (l *Locker) Acquire(ctx context.Context, key string) (*Lock, error) {
	token := uuid.NewString()
	lockKey := "lock:" + key
	for {
		ok, err := l.rdb.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return &Lock{rdb: l.rdb, key: lockKey, token: token}, nil
		}
		select {
		case <-ctx.Done():
			l.logger.Warn("gave up waiting for lock", zap.String("key", key))
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, key)
		case <-time.After(l.retry):
		}
	}
}

// Release drops the lock if it is still ours.
func (lk *Lock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, lk.rdb, []string{lk.key}, lk.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", lk.key, err)
	}
	return nil
}

// Lock acquires key and returns its release function.
func (l *Locker) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	lk, err := l.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	return lk.Release, nil
}
