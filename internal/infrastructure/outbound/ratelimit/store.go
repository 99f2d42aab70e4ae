// Package ratelimit throttles requests sent to the platform, one token bucket per key.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sophialabs/mapforge/internal/infrastructure/ports"
)

var _ ports.RateLimiter = (*Buckets)(nil)

type bucket struct {
	limiter  *rate.Limiter
	rate     float64
	burst    int
	lastUsed time.Time
}

// Buckets keeps one limiter per key (typically the target API) and drops
// limiters that have been idle for longer than the idle timeout.
type Buckets struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	idle    time.Duration
	done    chan struct{}
	once    sync.Once
}

// NewBuckets starts a limiter set with a background sweeper. Close stops it.
func NewBuckets(idle time.Duration) *Buckets {
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	b := &Buckets{
		buckets: make(map[string]*bucket),
		idle:    idle,
		done:    make(chan struct{}),
	}
	go b.sweep()
	return b
}

// Close stops the sweeper. It is safe to call more than once.
func (b *Buckets) Close() {
	b.once.Do(func() { close(b.done) })
}

func (b *Buckets) sweep() {
	t := time.NewTicker(b.idle)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			b.Evict()
		case <-b.done:
			return
		}
	}
}

// get returns the limiter for key, retuning it when rate or burst changed after a reload.
func (b *Buckets) get(key string, r float64, burst int) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.buckets[key]
	switch {
	case !ok:
		e = &bucket{limiter: rate.NewLimiter(rate.Limit(r), burst), rate: r, burst: burst}
		b.buckets[key] = e
	case e.rate != r || e.burst != burst:
		e.limiter.SetLimit(rate.Limit(r))
		e.limiter.SetBurst(burst)
		e.rate, e.burst = r, burst
	}
	e.lastUsed = time.Now()
	return e.limiter
}

// Allow reports whether a request for key may proceed now.
func (b *Buckets) Allow(_ context.Context, key string, r float64, burst int) bool {
	return b.get(key, r, burst).Allow()
}

// Wait blocks until a token for key is available. A non-positive rate means unlimited.
func (b *Buckets) Wait(ctx context.Context, key string, r float64, burst int) error {
	if r <= 0 {
		return ctx.Err()
	}
	if burst < 1 {
		burst = 1
	}
	return b.get(key, r, burst).Wait(ctx)
}

// Evict drops limiters idle for longer than the idle timeout.
func (b *Buckets) Evict() {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := time.Now().Add(-b.idle)
	for key, e := range b.buckets {
		if e.lastUsed.Before(cutoff) {
			delete(b.buckets, key)
		}
	}
}

// Len returns the number of live limiters.
func (b *Buckets) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buckets)
}
