package adapters

import (
	"container/list"
	"context"
	"sync"
	"time"

	ports "github.com/ZanzyTHEbar/persona-rag/persona/generation/harness/ports"
	"golang.org/x/time/rate"
)

// DefaultMaxRateKeys bounds how many keys a TokenBucket tracks at once.
const DefaultMaxRateKeys = 10000

// TokenBucket keeps one token bucket per key (session id or client address).
// A bucket idle for capacity*every has refilled completely and is dropped;
// past maxKeys the least recently seen bucket is dropped.
type TokenBucket struct {
	mu       sync.Mutex
	order    *list.List // front = most recently seen
	buckets  map[string]*list.Element
	capacity int
	every    time.Duration // time between token refills
	idleTTL  time.Duration
	maxKeys  int
	now      func() time.Time
}

type bucketEntry struct {
	key      string
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewTokenBucket creates a limiter that allows bursts of capacity and refills one token every refillRate.
func NewTokenBucket(capacity int, refillRate time.Duration) *TokenBucket {
	if capacity <= 0 {
		capacity = 1
	}
	if refillRate <= 0 {
		refillRate = time.Second
	}
	return &TokenBucket{
		order:    list.New(),
		buckets:  make(map[string]*list.Element),
		capacity: capacity,
		every:    refillRate,
		idleTTL:  time.Duration(capacity) * refillRate,
		maxKeys:  DefaultMaxRateKeys,
		now:      time.Now,
	}
}

// SetMaxKeys changes the tracked-key bound; n <= 0 restores DefaultMaxRateKeys.
func (tb *TokenBucket) SetMaxKeys(n int) {
	if n <= 0 {
		n = DefaultMaxRateKeys
	}
	tb.mu.Lock()
	tb.maxKeys = n
	tb.evict(tb.now())
	tb.mu.Unlock()
}

// Acquire takes a token for key without waiting; an empty bucket yields ErrRateLimitExceeded.
func (tb *TokenBucket) Acquire(ctx context.Context, key string) (release func(), err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tb.mu.Lock()
	now := tb.now()
	tb.evict(now)
	var entry *bucketEntry
	if el, ok := tb.buckets[key]; ok {
		entry = el.Value.(*bucketEntry)
		entry.lastSeen = now
		tb.order.MoveToFront(el)
	} else {
		entry = &bucketEntry{key: key, lim: rate.NewLimiter(rate.Every(tb.every), tb.capacity), lastSeen: now}
		tb.buckets[key] = tb.order.PushFront(entry)
		tb.evict(now)
	}
	allowed := entry.lim.AllowN(now, 1)
	tb.mu.Unlock()

	if !allowed {
		return nil, ErrRateLimitExceeded
	}
	// Tokens are consumed per request and refill over time.
	return func() {}, nil
}

// Len reports how many keys are tracked.
func (tb *TokenBucket) Len() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.buckets)
}

// evict drops idle buckets from the back, then trims to maxKeys. Caller holds mu.
func (tb *TokenBucket) evict(now time.Time) {
	for el := tb.order.Back(); el != nil; el = tb.order.Back() {
		entry := el.Value.(*bucketEntry)
		if now.Sub(entry.lastSeen) < tb.idleTTL && tb.order.Len() <= tb.maxKeys {
			return
		}
		tb.order.Remove(el)
		delete(tb.buckets, entry.key)
	}
}

// ErrRateLimitExceeded is returned when the rate limit is exceeded.
var ErrRateLimitExceeded = &RateLimitError{Message: "rate limit exceeded"}

type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string {
	return e.Message
}

var _ ports.RateLimiter = (*TokenBucket)(nil)
