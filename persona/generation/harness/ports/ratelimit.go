package harnessports

import "context"

// RateLimiter coordinates throughput per session key.
type RateLimiter interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
