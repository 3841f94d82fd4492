package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MemoryRateLimiter keeps a token bucket per key in process memory. A key
// may spend limit tokens at once and regains them evenly over window.
type MemoryRateLimiter struct {
	limiters sync.Map
	now      func() time.Time
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{now: time.Now}
}

func (r *MemoryRateLimiter) limiter(key string, limit int, window time.Duration) *rate.Limiter {
	bucketKey := fmt.Sprintf("%s|%d|%s", key, limit, window)
	if v, ok := r.limiters.Load(bucketKey); ok {
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)
	actual, _ := r.limiters.LoadOrStore(bucketKey, lim)
	return actual.(*rate.Limiter)
}

func (r *MemoryRateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	return r.limiter(key, limit, window).AllowN(r.now(), 1), nil
}
