package limiter

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// KeyedRateLimiter one token bucket per key
type KeyedRateLimiter struct {
	keys  map[string]*rate.Limiter
	mu    *sync.Mutex
	limit rate.Limit
	burst int
}

// NewKeyedRateLimiter new keyed rate limiter
func NewKeyedRateLimiter(r rate.Limit, b int) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		keys:  make(map[string]*rate.Limiter),
		mu:    &sync.Mutex{},
		limit: r,
		burst: b,
	}
}

// GetLimiter get limiter
func (r *KeyedRateLimiter) GetLimiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	limiter, exists := r.keys[key]
	if !exists {
		limiter = rate.NewLimiter(r.limit, r.burst)
		r.keys[key] = limiter
	}

	return limiter
}

// Wait blocks until key is allowed one event or ctx is done
func (r *KeyedRateLimiter) Wait(ctx context.Context, key string) error {
	return r.GetLimiter(key).Wait(ctx)
}
