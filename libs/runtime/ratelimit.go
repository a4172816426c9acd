package runtime

import (
	"context"
	"net/http"
	"time"

	"github.com/clinicaflow/clinica/libs/config"
	"github.com/clinicaflow/clinica/libs/httpx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimit is the limiter a service mounts on its public routes.
type RateLimit struct {
	Middleware httpx.Middleware
	// Ready is nil for the in-memory limiter.
	Ready *ReadyCheck
	Close func() error
}

// RateLimitFromEnv picks the Redis limiter when REDIS_ADDR is set and the
// in-process limiter otherwise. RATE_LIMIT_RPM <= 0 disables limiting.
func RateLimitFromEnv(logger *zap.Logger, prefix string) (RateLimit, error) {
	noop := RateLimit{
		Middleware: func(next http.Handler) http.Handler { return next },
		Close:      func() error { return nil },
	}
	rpm, err := config.Int("RATE_LIMIT_RPM", 120)
	if err != nil {
		return noop, err
	}
	if rpm <= 0 {
		logger.Info("rate limiting disabled")
		return noop, nil
	}

	addr := config.String("REDIS_ADDR", "")
	if addr == "" {
		logger.Info("using in-memory rate limiter", zap.Int("rpm", rpm))
		noop.Middleware = httpx.NewRateLimiter(rpm, time.Minute).Middleware()
		return noop, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.String("REDIS_PASSWORD", ""),
	})
	failOpen := config.Bool("RATE_LIMIT_FAIL_OPEN", true)
	limiter := httpx.NewRedisRateLimiter(rdb, httpx.RedisWindowConfig{
		Limit:    rpm,
		Window:   time.Minute,
		Prefix:   prefix,
		FailOpen: failOpen,
	})
	logger.Info("using redis rate limiter",
		zap.String("addr", addr),
		zap.Int("rpm", rpm),
		zap.Bool("fail_open", failOpen),
	)
	return RateLimit{
		Middleware: limiter.Middleware(logger),
		Ready:      &ReadyCheck{Name: "redis", Check: func(ctx context.Context) error { return limiter.Ping(ctx) }},
		Close:      rdb.Close,
	}, nil
}
