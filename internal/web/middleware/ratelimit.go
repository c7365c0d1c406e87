package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JonMunkholm/adminjobs/internal/config"
	"github.com/JonMunkholm/adminjobs/internal/core"
	"github.com/JonMunkholm/adminjobs/internal/logging"
)

var rateLimitedMessage = core.UserMessage{
	Message: "Too many requests",
	Action:  "Please wait a moment before trying again",
	Code:    "RATE001",
}

// idleLimiterTTL is how long an unused tenant limiter is kept.
const idleLimiterTTL = 10 * time.Minute

type tenantLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles requests per organization with a token bucket.
// Requests without a tenant fall back to the client address.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*tenantLimiter
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

// NewRateLimiter builds a limiter allowing cfg.RequestsPerMinute sustained
// with bursts of cfg.Burst. It returns nil when limiting is disabled.
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	if !cfg.Enabled {
		return nil
	}
	return &RateLimiter{
		limiters: make(map[string]*tenantLimiter),
		limit:    rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute)),
		burst:    cfg.Burst,
		now:      time.Now,
	}
}

// Allow reports whether key may proceed now. When denied it also returns
// how long until the next token.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	tl, ok := rl.limiters[key]
	if !ok {
		tl = &tenantLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = tl
	}
	tl.lastSeen = now

	res := tl.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Minute
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Cleanup drops limiters idle for longer than idleLimiterTTL until ctx ends.
func (rl *RateLimiter) Cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.evictIdle()
		}
	}
}

func (rl *RateLimiter) evictIdle() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-idleLimiterTTL)
	evicted := 0
	for key, tl := range rl.limiters {
		if tl.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
			evicted++
		}
	}
	return evicted
}

// Middleware rejects throttled requests with 429 and a Retry-After header.
// A nil RateLimiter passes everything through.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	if rl == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := TenantFrom(r.Context()).OrganizationID
		if key == "" {
			key = clientAddr(r)
		}

		if ok, wait := rl.Allow(key); !ok {
			secs := int(wait.Seconds())
			if wait%time.Second != 0 {
				secs++
			}
			w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				"path", r.URL.Path,
				"retry_after", secs,
			)
			writeError(w, http.StatusTooManyRequests, rateLimitedMessage)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientAddr(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
