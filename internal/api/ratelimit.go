package api

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// rateTier is one endpoint class's request budget
type rateTier struct {
	max    int
	window time.Duration
}

// defaultRateTiers groups endpoints by abuse profile: tracking pixels
// fire once per mail-client render and need headroom, the API does not.
func defaultRateTiers() map[string]rateTier {
	return map[string]rateTier{
		"api":      {max: 100, window: time.Minute},
		"tracking": {max: 500, window: time.Minute},
		"default":  {max: 60, window: time.Minute},
	}
}

const (
	limiterCleanupEvery = 5 * time.Minute
	limiterIdleEviction = time.Hour
)

// rateLimiter is a per-client sliding-window limiter. In-process state
// is fine here: limits are per API instance and reset on restart.
type rateLimiter struct {
	mu          sync.Mutex
	requests    map[string][]time.Time
	tiers       map[string]rateTier
	lastCleanup time.Time
	now         func() time.Time
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{
		requests:    make(map[string][]time.Time),
		tiers:       defaultRateTiers(),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

// tierFor classifies a request path into a rate tier
func (rl *rateLimiter) tierFor(path string) (string, rateTier) {
	switch {
	case strings.HasPrefix(path, "/track") || strings.HasPrefix(path, "/webhooks"):
		return "tracking", rl.tiers["tracking"]
	case strings.HasPrefix(path, "/api"):
		return "api", rl.tiers["api"]
	default:
		return "default", rl.tiers["default"]
	}
}

// allow records one request against the key's window. When the budget
// is exhausted it reports how long the client should wait, derived from
// when the oldest request in the window falls out.
func (rl *rateLimiter) allow(key string, tier rateTier) (allowed bool, remaining, retryAfter int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.maybeCleanup(now)

	cutoff := now.Add(-tier.window)
	kept := rl.requests[key][:0]
	for _, t := range rl.requests[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= tier.max {
		rl.requests[key] = kept
		retry := int(kept[0].Add(tier.window).Sub(now).Seconds()) + 1
		if retry < 1 {
			retry = 1
		}
		return false, 0, retry
	}

	rl.requests[key] = append(kept, now)
	return true, tier.max - len(rl.requests[key]), 0
}

// maybeCleanup evicts clients with no requests in the last hour.
// Caller holds the mutex.
func (rl *rateLimiter) maybeCleanup(now time.Time) {
	if now.Sub(rl.lastCleanup) < limiterCleanupEvery {
		return
	}
	rl.lastCleanup = now
	for key, times := range rl.requests {
		if len(times) == 0 || now.Sub(times[len(times)-1]) > limiterIdleEviction {
			delete(rl.requests, key)
		}
	}
}

// Middleware enforces the per-tier budgets. Health checks are exempt so
// orchestrator probes can never lock themselves out.
func (rl *rateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/health") {
			next.ServeHTTP(w, r)
			return
		}

		name, tier := rl.tierFor(r.URL.Path)
		key := clientHost(r) + ":" + name

		allowed, remaining, retryAfter := rl.allow(key, tier)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(tier.max))
		w.Header().Set("X-RateLimit-Reset", strconv.Itoa(int(tier.window.Seconds())))
		if !allowed {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			respondError(w, http.StatusTooManyRequests,
				fmt.Sprintf("Rate limit exceeded. Please retry after %d seconds.", retryAfter))
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		next.ServeHTTP(w, r)
	})
}

// clientHost extracts the client address. middleware.RealIP has already
// folded X-Forwarded-For / X-Real-IP into RemoteAddr by the time this
// runs.
func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
