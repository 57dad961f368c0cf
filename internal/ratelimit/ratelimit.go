// Package ratelimit provides keyed token-bucket limiters for authentication attempts.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultIdleTTL   = 10 * time.Minute
	sweepEveryCalls  = 256
	unknownKeyBucket = "unknown"
)

// Keyed holds one token bucket per key (client IP, identity id).
// Buckets idle for longer than the TTL are evicted lazily.
type Keyed struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	calls   int
	now     func() time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// Option configures a Keyed limiter.
type Option func(*Keyed)

// WithClock replaces the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(k *Keyed) {
		if now != nil {
			k.now = now
		}
	}
}

// WithIdleTTL sets how long an unused bucket is retained.
func WithIdleTTL(d time.Duration) Option {
	return func(k *Keyed) {
		if d > 0 {
			k.idleTTL = d
		}
	}
}

// New returns a limiter allowing events per interval with the given burst.
// Non-positive inputs fall back to one event per second with a burst of one.
func New(events int, per time.Duration, burst int, opts ...Option) *Keyed {
	if events <= 0 || per <= 0 {
		events, per = 1, time.Second
	}
	if burst <= 0 {
		burst = 1
	}
	k := &Keyed{
		buckets: make(map[string]*bucket),
		limit:   rate.Every(per / time.Duration(events)),
		burst:   burst,
		idleTTL: defaultIdleTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Allow consumes one token for key. When the bucket is empty it returns false and the
// time until the next token is available.
func (k *Keyed) Allow(key string) (bool, time.Duration) {
	if key == "" {
		key = unknownKeyBucket
	}
	now := k.now()

	k.mu.Lock()
	defer k.mu.Unlock()

	k.calls++
	if k.calls%sweepEveryCalls == 0 {
		k.evictLocked(now)
	}

	b, ok := k.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(k.limit, k.burst)}
		k.buckets[key] = b
	}
	b.seen = now

	r := b.lim.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

// Len reports how many buckets are currently tracked.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}

func (k *Keyed) evictLocked(now time.Time) {
	for key, b := range k.buckets {
		if now.Sub(b.seen) > k.idleTTL {
			delete(k.buckets, key)
		}
	}
}
