package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func unreachableRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestRedisWindowKey(t *testing.T) {
	rl := NewRedisRateLimiter(nil, RedisWindowConfig{Limit: 10, Window: time.Minute, Prefix: "agenda-service"})
	at := time.Date(2026, 3, 10, 14, 0, 42, 0, time.UTC)
	key, reset := rl.windowKey("10.0.0.1", at)
	if key != "agenda-service:10.0.0.1:1773151200" {
		t.Fatalf("unexpected key %s", key)
	}
	if !reset.Equal(time.Date(2026, 3, 10, 14, 1, 0, 0, time.UTC)) {
		t.Fatalf("unexpected reset %s", reset)
	}
	next, _ := rl.windowKey("10.0.0.1", at.Add(time.Minute))
	if next == key {
		t.Fatalf("expected a new window key")
	}
}

func TestRedisLimiterFailureModes(t *testing.T) {
	rdb := unreachableRedis()
	defer rdb.Close()
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	for failOpen, want := range map[bool]int{true: http.StatusOK, false: http.StatusServiceUnavailable} {
		rl := NewRedisRateLimiter(rdb, RedisWindowConfig{Limit: 1, FailOpen: failOpen})
		rec := httptest.NewRecorder()
		rl.Middleware(zap.NewNop())(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != want {
			t.Fatalf("fail_open=%v: expected %d, got %d", failOpen, want, rec.Code)
		}
	}
}
