package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/rhu/rhu/internal/platform/auth"
)

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerSecond: 50, BurstSize: 100}
}

// sweepInterval is the minimum time between passes over idle limiters.
const sweepInterval = time.Minute

// limiters hands out one rate.Limiter per client key. Limiters whose bucket
// has refilled are dropped on a periodic sweep, since a fresh limiter
// behaves identically.
type limiters struct {
	mu        sync.Mutex
	byKey     map[string]*rate.Limiter
	limit     rate.Limit
	burst     int
	lastSweep time.Time
}

func newLimiters(limit rate.Limit, burst int) *limiters {
	return &limiters{byKey: make(map[string]*rate.Limiter), limit: limit, burst: burst}
}

func (l *limiters) get(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) >= sweepInterval {
		l.sweep(now)
	}
	lim, ok := l.byKey[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.byKey[key] = lim
	}
	return lim
}

// sweep must be called with mu held.
func (l *limiters) sweep(now time.Time) {
	for key, lim := range l.byKey {
		if lim.TokensAt(now) >= float64(l.burst) {
			delete(l.byKey, key)
		}
	}
	l.lastSweep = now
}

// rateLimitKey buckets authenticated staff by staff id and everyone else by
// client address.
func rateLimitKey(c echo.Context) string {
	if id, ok := auth.IdentityFromContext(c.Request().Context()); ok && id.StaffID > 0 {
		return "staff:" + strconv.FormatInt(id.StaffID, 10)
	}
	return "ip:" + c.RealIP()
}

// retryAfter is the whole number of seconds until lim has a token again.
func retryAfter(lim *rate.Limiter, now time.Time) int {
	if lim.Limit() <= 0 {
		return 1
	}
	missing := 1 - lim.TokensAt(now)
	if missing <= 0 {
		return 1
	}
	return int(math.Ceil(missing / float64(lim.Limit())))
}

// RateLimit returns a rate limiting middleware. It must run after the auth
// middleware for per-staff buckets to apply.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := newLimiters(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize)
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)

			now := time.Now()
			lim := store.get(rateLimitKey(c), now)
			if !lim.AllowN(now, 1) {
				h.Set("Retry-After", strconv.Itoa(retryAfter(lim, now)))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests, slow down and try again")
			}
			return next(c)
		}
	}
}
