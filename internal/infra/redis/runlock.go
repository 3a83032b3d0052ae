package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const runLockKey = "dispatcher:run-lock"

// ErrLockHeld is returned when another run currently owns the lock.
var ErrLockHeld = fmt.Errorf("%w: run lock is held by another run", domain.ErrConflict)

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLock keeps overlapping scheduler triggers from processing the queue at the same time.
type RunLock struct {
	client *goredis.Client
	key    string
	ttl    time.Duration
}

func NewRunLock(client *goredis.Client, ttl time.Duration) (*RunLock, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("run lock ttl must be positive")
	}

	return &RunLock{client: client, key: runLockKey, ttl: ttl}, nil
}

// Acquire takes the lock for token. It returns ErrLockHeld when another token owns it.
func (l *RunLock) Acquire(ctx context.Context, token string) error {
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		return ErrLockHeld
	}
	return nil
}

// Release drops the lock only if token still owns it.
func (l *RunLock) Release(ctx context.Context, token string) error {
	if _, err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Int(); err != nil {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	return nil
}
