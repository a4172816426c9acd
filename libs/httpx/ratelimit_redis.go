package httpx

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisWindowConfig configures the shared fixed-window limiter.
type RedisWindowConfig struct {
	Limit  int
	Window time.Duration
	Prefix string
	// FailOpen lets requests through while Redis is unreachable.
	FailOpen bool
}

// RedisRateLimiter counts requests per client and window in Redis, so every
// replica of a service draws from the same budget.
type RedisRateLimiter struct {
	rdb redis.UniversalClient
	cfg RedisWindowConfig
	now func() time.Time
}

func NewRedisRateLimiter(rdb redis.UniversalClient, cfg RedisWindowConfig) *RedisRateLimiter {
	if cfg.Limit <= 0 {
		cfg.Limit = 60
	}
	if cfg.Window < time.Second {
		cfg.Window = time.Minute
	}
	if cfg.Prefix = strings.TrimSpace(cfg.Prefix); cfg.Prefix == "" {
		cfg.Prefix = "rl"
	}
	return &RedisRateLimiter{rdb: rdb, cfg: cfg, now: time.Now}
}

// windowKey names the counter for client in the window containing t and
// returns when that window closes.
func (rl *RedisRateLimiter) windowKey(client string, t time.Time) (string, time.Time) {
	start := t.Truncate(rl.cfg.Window)
	return fmt.Sprintf("%s:%s:%d", rl.cfg.Prefix, client, start.Unix()), start.Add(rl.cfg.Window)
}

func (rl *RedisRateLimiter) hit(ctx context.Context, key string) (int64, error) {
	pipe := rl.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rl.cfg.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (rl *RedisRateLimiter) Middleware(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, resetAt := rl.windowKey(clientKey(r), rl.now())
			count, err := rl.hit(r.Context(), key)
			if err != nil {
				logger.Warn("redis rate limiter unavailable", zap.Error(err), zap.Bool("fail_open", rl.cfg.FailOpen))
				if rl.cfg.FailOpen {
					next.ServeHTTP(w, r)
					return
				}
				WriteError(w, http.StatusServiceUnavailable, "rate limiter unavailable")
				return
			}

			remaining := int64(rl.cfg.Limit) - count
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Limit))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(max(remaining, 0), 10))
			if remaining < 0 {
				wait := int(resetAt.Sub(rl.now()).Seconds()) + 1
				h.Set("Retry-After", strconv.Itoa(wait))
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RedisRateLimiter) Ping(ctx context.Context) error {
	return rl.rdb.Ping(ctx).Err()
}
