package middleware

import (
	"net/http"
	"sync"
	"time"
)

// RateLimiterConfig tunes the in-memory token bucket limiter.
type RateLimiterConfig struct {
	// RequestsPerSecond is the steady-state refill rate per key.
	RequestsPerSecond float64

	// BurstSize caps how many requests a key can spend at once.
	BurstSize int

	// CleanupInterval is how often idle buckets are evicted.
	CleanupInterval time.Duration

	// KeyFunc derives the limiting key. Defaults to the client IP.
	KeyFunc func(r *http.Request) string
}

// DefaultRateLimiterConfig suits the checkout API: generous enough for a
// storefront driving it, tight enough to blunt scripted session creation.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 10,
		BurstSize:         20,
		CleanupInterval:   time.Minute,
		KeyFunc:           GetClientIP,
	}
}

// bucket holds one key's spendable tokens.
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// take refills from elapsed time, then spends one token if available.
func (b *bucket) take(rate float64, burst int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens += now.Sub(b.lastRefill).Seconds() * rate
	if max := float64(burst); b.tokens > max {
		b.tokens = max
	}
	b.lastRefill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// idle reports whether the bucket is full and untouched since before cutoff.
func (b *bucket) idle(burst int, cutoff time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens >= float64(burst) && b.lastRefill.Before(cutoff)
}

// RateLimiter applies per-key token bucket limiting across requests.
type RateLimiter struct {
	config  RateLimiterConfig
	mu      sync.Mutex
	buckets map[string]*bucket
	stop    chan struct{}
}

// NewRateLimiter creates the limiter and starts its eviction loop.
// Call Stop when the server shuts down.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.KeyFunc == nil {
		config.KeyFunc = GetClientIP
	}

	rl := &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	go rl.evictLoop()
	return rl
}

// Allow reports whether one more request for key fits the limit.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{
			tokens:     float64(rl.config.BurstSize),
			lastRefill: time.Now(),
		}
		rl.buckets[key] = b
	}
	rl.mu.Unlock()

	return b.take(rl.config.RequestsPerSecond, rl.config.BurstSize)
}

func (rl *RateLimiter) evictLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-rl.config.CleanupInterval)
			rl.mu.Lock()
			for key, b := range rl.buckets {
				if b.idle(rl.config.BurstSize, cutoff) {
					delete(rl.buckets, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stop:
			return
		}
	}
}

// Stop terminates the eviction loop.
func (rl *RateLimiter) Stop() {
	close(rl.stop)
}

// Middleware rejects over-limit requests with 429 and a Retry-After hint.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(rl.config.KeyFunc(r)) {
			w.Header().Set("Retry-After", "1")
			respondTooManyRequests(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
