package ratelimit

import (
	"context"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/lucasnobrega7/lobe-chat/internal/config"
	"github.com/lucasnobrega7/lobe-chat/internal/redis"
)

func newRedisLimiter(t *testing.T, limit int, window time.Duration) (*Limiter, func()) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed rate limit tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Host: host,
			Port: port,
		},
	}
	client, err := redis.NewRedisClient(cfg)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	if raw := client.Raw(); raw != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := raw.FlushDB(ctx).Err(); err != nil {
			t.Fatalf("flush db: %v", err)
		}
	}
	return New(client, limit, window), func() { client.Close() }
}

func TestLimiterDeniesBeyondLimit(t *testing.T) {
	limiter, cleanup := newRedisLimiter(t, 100, time.Hour)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		allowed, err := limiter.Allow(ctx, 55)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !allowed {
			t.Fatalf("request %d unexpectedly denied", i+1)
		}
	}
	allowed, err := limiter.Allow(ctx, 55)
	if err != nil {
		t.Fatalf("allow 101: %v", err)
	}
	if allowed {
		t.Fatalf("expected the 101st request to be denied")
	}

	// A different user is unaffected.
	allowed, err = limiter.Allow(ctx, 56)
	if err != nil || !allowed {
		t.Fatalf("other user denied: allowed=%v err=%v", allowed, err)
	}
}

func TestLimiterWindowExpiry(t *testing.T) {
	limiter, cleanup := newRedisLimiter(t, 1, time.Second)
	defer cleanup()
	ctx := context.Background()

	if allowed, err := limiter.Allow(ctx, 77); err != nil || !allowed {
		t.Fatalf("first request should pass: allowed=%v err=%v", allowed, err)
	}
	if allowed, err := limiter.Allow(ctx, 77); err != nil || allowed {
		t.Fatalf("second request should be denied: allowed=%v err=%v", allowed, err)
	}
	time.Sleep(1200 * time.Millisecond)
	if allowed, err := limiter.Allow(ctx, 77); err != nil || !allowed {
		t.Fatalf("fresh window should admit: allowed=%v err=%v", allowed, err)
	}
}

func TestLimiterNilClientAdmitsAll(t *testing.T) {
	limiter := New(nil, 1, time.Hour)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, 1)
		if err != nil || !allowed {
			t.Fatalf("nil client must admit: allowed=%v err=%v", allowed, err)
		}
	}
}
