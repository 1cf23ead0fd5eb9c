package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld indicates another holder owns the lock.
var ErrLockHeld = errors.New("platform/cache: lock held")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker provides best-effort mutual exclusion across processes via Redis.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLocker builds a Locker whose locks expire after ttl.
func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Locker{client: client, ttl: ttl}
}

// Acquire takes key and returns a release func. ErrLockHeld is returned when
// key is already owned. A nil Locker grants every lock.
func (l *Locker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	if l == nil || l.client == nil {
		return func(context.Context) error { return nil }, nil
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}, nil
}
