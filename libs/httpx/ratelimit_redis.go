package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter counts requests per client in fixed windows stored in
// Redis, so every booking-service replica shares one budget.
type RedisRateLimiter struct {
	rdb    redis.Cmdable
	limit  int
	window time.Duration
	prefix string
}

func NewRedisRateLimiter(rdb redis.Cmdable, limit int, window time.Duration, prefix string) *RedisRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	if prefix == "" {
		prefix = "zen:rl"
	}
	return &RedisRateLimiter{rdb: rdb, limit: limit, window: window, prefix: prefix}
}

type windowHit struct {
	count int64
	ttl   time.Duration
}

// Middleware rejects over-budget clients with 429. When Redis fails the
// request is let through if failOpen, otherwise answered with 503.
func (rl *RedisRateLimiter) Middleware(logger *slog.Logger, failOpen bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hit, err := rl.hit(r.Context(), rl.prefix+":"+clientKey(r))
			if err != nil {
				if logger != nil {
					logger.Warn("rate limiter unavailable", "err", err, "failOpen", failOpen)
				}
				if failOpen {
					next.ServeHTTP(w, r)
					return
				}
				WriteJSON(w, http.StatusServiceUnavailable, errorBody{
					Error:   "SERVICE_UNAVAILABLE",
					Message: "Servicio no disponible temporalmente.",
				})
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(max(int64(rl.limit)-hit.count, 0), 10))
			if hit.count > int64(rl.limit) {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(hit.ttl, rl.window)))
				writeRateLimited(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// hit increments the client's counter, starting its window on the first
// request, and reports how long the window has left.
func (rl *RedisRateLimiter) hit(ctx context.Context, key string) (windowHit, error) {
	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := rl.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, rl.window)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return windowHit{}, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return windowHit{count: incr.Val(), ttl: ttl.Val()}, nil
}

// retryAfterSeconds rounds the remaining window up to whole seconds. A
// missing or negative TTL falls back to the full window.
func retryAfterSeconds(ttl, window time.Duration) int {
	if ttl <= 0 {
		ttl = window
	}
	return int(math.Ceil(ttl.Seconds()))
}
