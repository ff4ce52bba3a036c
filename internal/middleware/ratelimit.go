package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter is a sliding-window limiter keyed by caller.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	done     chan struct{}
	once     sync.Once
}

// NewRateLimiter creates a limiter and starts its eviction goroutine.
// Call Close to stop it.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		done:     make(chan struct{}),
	}
	go rl.evictLoop()
	return rl
}

// Allow records a request for key and reports whether it is within the
// limit.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	recent := fresh(r.requests[key], now.Add(-r.window))
	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}
	r.requests[key] = append(recent, now)
	return true
}

// Close stops the eviction goroutine.
func (r *RateLimiter) Close() {
	r.once.Do(func() { close(r.done) })
}

// Limit returns middleware that rejects callers over the limit with 429.
// keyFn picks the key; requests for which it returns "" are not limited.
func (r *RateLimiter) Limit(keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if key := keyFn(req); key != "" && !r.Allow(key) {
				w.Header().Set("Retry-After", strconv.Itoa(int(r.window.Seconds())))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded","kind":"rate_limited"}`))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

// evictLoop drops keys whose requests have all aged out, so the map does
// not grow without bound.
func (r *RateLimiter) evictLoop() {
	ticker := time.NewTicker(r.window)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.mu.Lock()
			cutoff := time.Now().Add(-r.window)
			for key, times := range r.requests {
				if recent := fresh(times, cutoff); len(recent) == 0 {
					delete(r.requests, key)
				} else {
					r.requests[key] = recent
				}
			}
			r.mu.Unlock()
		}
	}
}

func fresh(times []time.Time, cutoff time.Time) []time.Time {
	var out []time.Time
	for _, t := range times {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}
