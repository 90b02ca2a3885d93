package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still carries our token,
// so an expired lock re-acquired by another instance is left alone.
const releaseScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0`

// ErrLockTimeout is returned when ctx ends before the lock is acquired.
var ErrLockTimeout = errors.New("lock: timed out waiting for lock")

// Redis is a lock shared by every instance using the same Redis.  Waiters
// in this process queue on a local Keyed first, so only one of them polls
// Redis at a time.
type Redis struct {
	rdb      redis.Cmdable
	prefix   string
	ttl      time.Duration
	retry    time.Duration
	local    *Keyed
	newToken func() string
}

// NewRedis returns a Redis lock.  ttl bounds how long a crashed holder
// can block others.
func NewRedis(rdb redis.Cmdable, prefix string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Redis{
		rdb:      rdb,
		prefix:   prefix,
		ttl:      ttl,
		retry:    50 * time.Millisecond,
		local:    NewKeyed(),
		newToken: uuid.NewString,
	}
}

// Lock blocks until key is held or ctx is done.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	unlockLocal, err := r.local.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	rkey := r.prefix + ":" + key
	token := r.newToken()
	for {
		ok, err := r.rdb.SetNX(ctx, rkey, token, r.ttl).Result()
		if err != nil {
			unlockLocal()
			return nil, fmt.Errorf("lock %s: %w", rkey, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			unlockLocal()
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, rkey)
		case <-time.After(r.retry):
		}
	}
	return func() {
		// The holder's ctx may already be cancelled; release regardless.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = r.rdb.Eval(rctx, releaseScript, []string{rkey}, token).Err()
		unlockLocal()
	}, nil
}
