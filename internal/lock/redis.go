// Package lock provides a Redis backed per-enclosure mutex for
// allocation runs.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock stayed held for the whole
// wait period.
var ErrNotAcquired = errors.New("lock not acquired")

var releaseScript = redis.NewScript(`
    if redis.call('GET', KEYS[1]) == ARGV[1] then
        return redis.call('DEL', KEYS[1])
    end
    return 0
`)

// RedisLocker serialises allocation runs on one enclosure across
// processes.  Each lock expires after TTL so a crashed holder cannot
// block an enclosure forever.
type RedisLocker struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
}

// NewRedisLocker returns a locker, or nil when rdb is nil.  Without a
// locker the engine relies on the unique indexes alone.
func NewRedisLocker(rdb *redis.Client, prefix string, ttl, wait time.Duration) *RedisLocker {
	if rdb == nil {
		return nil
	}
	if prefix == "" {
		prefix = "lock"
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if wait < 0 {
		wait = 0
	}
	return &RedisLocker{rdb: rdb, prefix: prefix, ttl: ttl, wait: wait, poll: 100 * time.Millisecond}
}

// Key returns the Redis key guarding enclosure.
func (l *RedisLocker) Key(enclosure string) string {
	return l.prefix + ":allocation:" + enclosure
}

// Acquire blocks until the enclosure lock is held, the wait period
// elapses, or ctx is done.
func (l *RedisLocker) Acquire(ctx context.Context, enclosure string) (func(), error) {
	key := l.Key(enclosure)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return func() {
				// release must run even if the run's context was cancelled
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = releaseScript.Run(ctx, l.rdb, []string{key}, token).Err()
			}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrNotAcquired, key)
		}
		t := time.NewTimer(l.poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}
