package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimiter throttles credential endpoints per client IP. With Redis it
// shares counters across instances; without it, or when Redis errors, it
// falls back to an in-process token bucket.
type RateLimiter struct {
	limiter  *redis_rate.Limiter
	fallback *localLimiter
	limit    redis_rate.Limit
	logger   *slog.Logger
}

func NewRateLimiter(rdb redis.UniversalClient, perMinute int, logger *slog.Logger) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	rl := &RateLimiter{
		fallback: newLocalLimiter(),
		limit:    redis_rate.PerMinute(perMinute),
		logger:   logger,
	}
	if rdb != nil {
		rl.limiter = redis_rate.NewLimiter(rdb)
	}
	return rl
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "ratelimit:login:" + remoteIP(r)
		allowed, retryAfter := rl.allow(r.Context(), key)
		if !allowed {
			secs := int(retryAfter.Seconds())
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			http.Error(w, "Too many attempts, try again shortly.", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(ctx context.Context, key string) (bool, time.Duration) {
	if rl.limiter != nil {
		res, err := rl.limiter.Allow(ctx, key, rl.limit)
		if err == nil {
			return res.Allowed > 0, res.RetryAfter
		}
		rl.logger.Warn("rate limiter error, using local fallback", "err", err, "key", key)
	}
	return rl.fallback.allow(key, rl.limit)
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

const entryTTL = 10 * time.Minute

type localLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	lastPrune time.Time
}

func newLocalLimiter() *localLimiter {
	return &localLimiter{limiters: make(map[string]*limiterEntry), lastPrune: time.Now()}
}

func (l *localLimiter) allow(key string, limit redis_rate.Limit) (bool, time.Duration) {
	ratePerSec := float64(limit.Rate) / limit.Period.Seconds()
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastPrune) > entryTTL {
		for k, e := range l.limiters {
			if now.Sub(e.lastAccess) > entryTTL {
				delete(l.limiters, k)
			}
		}
		l.lastPrune = now
	}
	e, ok := l.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(ratePerSec), limit.Burst)}
		l.limiters[key] = e
	}
	e.lastAccess = now
	if e.limiter.Allow() {
		return true, 0
	}
	return false, time.Duration(float64(time.Second) / ratePerSec)
}
