package ratelimit

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/lucasnobrega7/lobe-chat/internal/redis"
)

const (
	DefaultLimit  = 100
	DefaultWindow = 24 * time.Hour
)

// Limiter is a fixed-window per-user request counter backed by redis. The
// window expiry is armed on the first increment of each window and the whole
// counter resets when it fires.
type Limiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// New builds a limiter. Non-positive limit or window fall back to the defaults.
func New(client *redis.Client, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{client: client, limit: limit, window: window}
}

// Limit reports the configured threshold.
func (l *Limiter) Limit() int {
	return l.limit
}

// Allow increments the user's counter and reports whether the request is
// within quota. A nil client admits everything.
func (l *Limiter) Allow(ctx context.Context, userID int64) (bool, error) {
	if l == nil || l.client == nil {
		return true, nil
	}
	key := fmt.Sprintf("ratelimit:%d", userID)
	count, err := l.client.Incr(ctx, key)
	if err != nil {
		return false, fmt.Errorf("increment rate counter: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window); err != nil {
			log.WithError(err).Warn("arm rate limit window failed")
		}
	}
	return count <= int64(l.limit), nil
}
