package server

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/conneroisu/brokerage/internal/errors"
	"github.com/conneroisu/brokerage/internal/logging"
)

// SlidingWindowRateLimiter allows at most maxRequests in any window-long
// interval, so a burst straddling a fixed window boundary is still caught.
type SlidingWindowRateLimiter struct {
	maxRequests    int
	windowDuration time.Duration

	mutex      sync.Mutex
	timestamps []time.Time
}

// NewSlidingWindowRateLimiter creates a limiter for one client.
func NewSlidingWindowRateLimiter(maxRequests int, windowDuration time.Duration) *SlidingWindowRateLimiter {
	return &SlidingWindowRateLimiter{
		maxRequests:    maxRequests,
		windowDuration: windowDuration,
		timestamps:     make([]time.Time, 0, min(maxRequests, 64)),
	}
}

// RateLimitResult is the outcome of one check.
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// allow records a request at now if the window has room.
func (rl *SlidingWindowRateLimiter) allow(now time.Time) RateLimitResult {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	rl.cleanOldTimestamps(now)

	result := RateLimitResult{Limit: rl.maxRequests}
	if len(rl.timestamps) < rl.maxRequests {
		rl.timestamps = append(rl.timestamps, now)
		result.Allowed = true
	}

	result.Remaining = rl.maxRequests - len(rl.timestamps)
	if len(rl.timestamps) > 0 {
		result.ResetAt = rl.timestamps[0].Add(rl.windowDuration)
	} else {
		result.ResetAt = now
	}
	if !result.Allowed {
		result.RetryAfter = result.ResetAt.Sub(now)
	}

	return result
}

// idle reports whether the limiter holds no requests at now.
func (rl *SlidingWindowRateLimiter) idle(now time.Time) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	rl.cleanOldTimestamps(now)
	return len(rl.timestamps) == 0
}

// cleanOldTimestamps removes timestamps that fall outside the current window.
// This method must be called with the mutex already held.
func (rl *SlidingWindowRateLimiter) cleanOldTimestamps(now time.Time) {
	cutoff := now.Add(-rl.windowDuration)

	validIndex := 0
	for i, timestamp := range rl.timestamps {
		if timestamp.After(cutoff) {
			validIndex = i
			break
		}
		validIndex = i + 1
	}

	if validIndex > 0 {
		copy(rl.timestamps, rl.timestamps[validIndex:])
		rl.timestamps = rl.timestamps[:len(rl.timestamps)-validIndex]
	}
}

// RateLimiter keeps one sliding window per client key.
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*SlidingWindowRateLimiter
}

// NewRateLimiter allows limit requests per window for each key.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		windows: make(map[string]*SlidingWindowRateLimiter),
	}
}

// Check records a request for key and reports whether it is allowed.
func (rl *RateLimiter) Check(key string) RateLimitResult {
	rl.mu.Lock()
	w, ok := rl.windows[key]
	if !ok {
		w = NewSlidingWindowRateLimiter(rl.limit, rl.window)
		rl.windows[key] = w
	}
	rl.mu.Unlock()

	return w.allow(rl.now())
}

// Len returns the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return len(rl.windows)
}

// Cleanup forgets keys with no request inside the window.
func (rl *RateLimiter) Cleanup() int {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, w := range rl.windows {
		if w.idle(now) {
			delete(rl.windows, key)
			removed++
		}
	}

	return removed
}

// Run cleans up every interval until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Cleanup()
		}
	}
}

// RateLimitMiddleware rejects clients over limiter's budget with 429. The
// health endpoint is never limited.
func RateLimitMiddleware(limiter *RateLimiter, trustProxy bool, logger logging.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == healthPath {
				next.ServeHTTP(w, r)
				return
			}

			ip := clientIP(r, trustProxy)
			result := limiter.Check(ip)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				retry := int(result.RetryAfter.Round(time.Second).Seconds())
				w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))

				logger.Warn(r.Context(),
					errors.NewSecurityError(errors.ErrCodeRateLimited, "rate limit exceeded"),
					"Rate limit exceeded",
					"ip", ip,
					"path", r.URL.Path)

				writeJSONError(w, http.StatusTooManyRequests, "Too many requests, please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
