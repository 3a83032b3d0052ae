package ratelimit

import "context"

// RateLimiter blocks until one more send through transport fits the shared budget, or ctx ends.
type RateLimiter interface {
	Wait(ctx context.Context, transport string) error
}
