package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	rateKeyPrefix = "dispatcher:sendrate"
	backoffStep   = 50 * time.Millisecond
	backoffMax    = 500 * time.Millisecond
)

var allowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*SendRateLimiter)(nil)

// SendRateLimiter caps sends per fixed window for a transport, shared by every process
// pointed at the same Redis.
type SendRateLimiter struct {
	client *goredis.Client
	limit  int64
	window time.Duration
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	script *goredis.Script
}

func NewSendRateLimiter(client *goredis.Client, limit int, window time.Duration) (*SendRateLimiter, error) {
	return newSendRateLimiter(client, int64(limit), window, time.Now, sleepWithContext)
}

func newSendRateLimiter(
	client *goredis.Client,
	limit int64,
	window time.Duration,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*SendRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("send rate limit must be positive, got %d", limit)
	}
	if window < time.Second {
		window = time.Second
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &SendRateLimiter{
		client: client,
		limit:  limit,
		window: window.Truncate(time.Second),
		now:    nowFn,
		sleep:  sleepFn,
		script: allowScript,
	}, nil
}

func (r *SendRateLimiter) Allow(ctx context.Context, transport string) (bool, error) {
	if r == nil || r.client == nil || r.script == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}

	name := strings.ToLower(strings.TrimSpace(transport))
	if name == "" {
		return false, fmt.Errorf("transport is required")
	}

	windowSeconds := int64(r.window / time.Second)
	bucket := r.now().UTC().Unix() / windowSeconds
	key := fmt.Sprintf("%s:%s:%d", rateKeyPrefix, name, bucket)

	result, err := r.script.Run(ctx, r.client, []string{key}, r.limit, windowSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate send rate: %w", err)
	}

	return result == 1, nil
}

func (r *SendRateLimiter) Wait(ctx context.Context, transport string) error {
	backoff := backoffStep
	for {
		allowed, err := r.Allow(ctx, transport)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := r.sleep(ctx, backoff); err != nil {
			return err
		}

		backoff *= 2
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
