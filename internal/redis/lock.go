package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/lock"
)

const retryInterval = 25 * time.Millisecond

// Locker holds a Redis key per lock so that several api-server processes
// share the same critical sections. The key expires after ttl, which bounds
// how long a crashed holder can block others.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	log    *zap.Logger
}

var _ lock.Locker = (*Locker)(nil)

func NewLocker(client *redis.Client, ttl, wait time.Duration, log *zap.Logger) *Locker {
	return &Locker{
		client: client,
		ttl:    ttl,
		wait:   wait,
		log:    log,
	}
}

func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	redisKey := "lock:" + key
	token := uuid.NewString()

	if err := l.acquire(ctx, redisKey, token); err != nil {
		return err
	}

	defer func() {
		// the caller's ctx may already be done; release on a fresh one
		relCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := l.release(relCtx, redisKey, token); err != nil {
			l.log.Warn("release lock", zap.String("key", key), zap.Error(err))
		}
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *Locker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return nil
		}
		if !time.Now().Add(retryInterval).Before(deadline) {
			return lock.ErrNotAcquired
		}

		timer := time.NewTimer(retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *Locker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}
