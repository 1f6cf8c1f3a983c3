// Package lease provides short-lived exclusive leases used to keep two
// replicas from running the same scheduled job at once.  Leases only save
// duplicate work; correctness never depends on them.
package lease

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Release gives up a lease.  Releasing a lease that expired or was taken
// over is a no-op.
type Release func(ctx context.Context) error

// Locker hands out leases.  ok is false when another holder owns key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release Release, ok bool, err error)
}

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// RedisLocker implements Locker with SET NX PX.
type RedisLocker struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisLocker returns a Locker backed by rdb.  Keys are stored under
// prefix + ":" + key.
func NewRedisLocker(rdb *redis.Client, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "lease"
	}
	return &RedisLocker{rdb: rdb, prefix: prefix}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Release, bool, error) {
	full := l.prefix + ":" + key
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return func(ctx context.Context) error {
		err := releaseScript.Run(ctx, l.rdb, []string{full}, token).Err()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}, true, nil
}

// LocalLocker is an in-process Locker for single-replica deployments and
// tests.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

// NewLocalLocker returns an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]time.Time{}, now: time.Now}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Release, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return nil, false, nil
	}
	exp := now.Add(ttl)
	l.held[key] = exp
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if cur, ok := l.held[key]; ok && cur.Equal(exp) {
			delete(l.held, key)
		}
		return nil
	}, true, nil
}
