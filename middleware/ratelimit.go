package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rs/zerolog"
)

// RateLimiter throttles inbound requests per client (the bucket/
// scheduler packages separately govern outbound quota per upstream
// key; this is an ambient, client-facing limiter only). Downstream
// authentication is out of scope, so clients are identified by IP.
type RateLimiter struct {
	logger  zerolog.Logger
	enabled bool
	rpm     int
	burst   int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiter creates a rate limiter allowing rpm requests per
// minute per client, with burst as the token bucket's capacity.
func NewRateLimiter(logger zerolog.Logger, enabled bool, rpm, burst int) *RateLimiter {
	return &RateLimiter{
		logger:   logger,
		enabled:  enabled,
		rpm:      rpm,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(float64(rl.rpm)/60.0), rl.burst)
		rl.limiters[key] = l
	}
	return l
}

// Handler returns the rate limiting middleware handler.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.enabled {
			next.ServeHTTP(w, r)
			return
		}

		key := clientKey(r)
		limiter := rl.limiterFor(key)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.rpm))

		if !limiter.Allow() {
			retryAfter := int(time.Second.Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			http.Error(w, fmt.Sprintf(`{"error":"rate_limit_exceeded","message":"rate limit of %d requests per minute exceeded","retry_after":%d}`,
				rl.rpm, retryAfter), http.StatusTooManyRequests)
			rl.logger.Warn().Str("client", key).Int("limit", rl.rpm).Msg("rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Cleanup bounds memory for long-running processes: once more than
// maxEntries clients are tracked, it discards every limiter entry, so
// each client starts again with a full burst. It does not track when a
// client was last seen and does not evict selectively. It holds mu, so
// it may run concurrently with request handling.
func (rl *RateLimiter) Cleanup(maxEntries int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.limiters) <= maxEntries {
		return
	}
	rl.limiters = make(map[string]*rate.Limiter)
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
