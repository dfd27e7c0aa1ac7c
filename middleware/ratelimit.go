package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/labstack/echo/v4"

	"github.com/guardian-dev/guardian/internal/metrics"
)

// RateLimitStore counts requests per key over a sliding window. A key's
// counter lives for one window from its first hit; once it lapses the next
// request starts a fresh window.
type RateLimitStore struct {
	mu      sync.Mutex
	buckets *ttlcache.Cache[string, int]
	limit   int
}

// NewRateLimitStore creates a store allowing limit requests per window.
func NewRateLimitStore(limit int, window time.Duration) *RateLimitStore {
	buckets := ttlcache.New(
		ttlcache.WithTTL[string, int](window),
		ttlcache.WithDisableTouchOnHit[string, int](),
	)
	go buckets.Start()

	return &RateLimitStore{buckets: buckets, limit: limit}
}

// Allow reports whether a request under key fits in the current window, and
// counts it if so. A rejected request is not counted, so a full window drains
// on schedule instead of being held open by rejected traffic.
func (s *RateLimitStore) Allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	if item := s.buckets.Get(key); item != nil {
		count = item.Value()
	}
	if count >= s.limit {
		return false
	}

	if count == 0 {
		s.buckets.Set(key, 1, ttlcache.DefaultTTL)
	} else {
		// Keep the window anchored at the first hit.
		remaining := time.Until(s.buckets.Get(key).ExpiresAt())
		s.buckets.Set(key, count+1, remaining)
	}
	return true
}

// Close stops the bucket cache.
func (s *RateLimitStore) Close() {
	s.buckets.Stop()
}

// KeyFunc derives the rate-limit key from a request. An empty key skips the
// limiter for that request.
type KeyFunc func(c echo.Context) string

// KeyByIP keys on the client address, for the coarse per-source limit.
func KeyByIP(c echo.Context) string {
	return "ip:" + c.RealIP()
}

// KeyByUser keys on the authenticated user id, for the tight per-identity
// limit. Requests without an identity in context are not limited here.
func KeyByUser(c echo.Context) string {
	if id, ok := c.Get(ContextKeyUserID).(string); ok && id != "" {
		return "user:" + id
	}
	return ""
}

// RateLimit rejects over-limit requests with an empty 429 before the handler
// runs.
func RateLimit(store *RateLimitStore, key KeyFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			k := key(c)
			if k == "" {
				return next(c)
			}
			if !store.Allow(k) {
				metrics.RateLimitedTotal.Inc()
				return c.NoContent(http.StatusTooManyRequests)
			}
			return next(c)
		}
	}
}
