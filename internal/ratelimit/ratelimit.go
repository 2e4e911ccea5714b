// Package ratelimit limits account requests with fixed windows counted in Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/thibaut-decherit/usermanager/internal/account"
)

var ErrInvalidConfig = errors.New("invalid rate limit config")

// Config is the fixed window applied to every key.
type Config struct {
	// Max is the number of requests allowed per Window.
	Max    int
	Window time.Duration
	// Prefix is prepended to all keys, "ratelimit" if empty.
	Prefix string
}

// Limiter allows at most Max requests per Window for each flow kind and key.
// Counters are shared between all processes using the same Redis.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a Limiter.
func New(rdb redis.UniversalClient, cfg Config) (*Limiter, error) {
	if cfg.Max <= 0 || cfg.Window < time.Second {
		return nil, fmt.Errorf("%w: max %d per %s", ErrInvalidConfig, cfg.Max, cfg.Window)
	}

	if cfg.Prefix == "" {
		cfg.Prefix = "ratelimit"
	}

	return &Limiter{
		redis:  rdb,
		config: cfg,
	}, nil
}

// Allow counts a request and reports whether it fits in the current window.
func (l *Limiter) Allow(ctx context.Context, kind account.FlowKind, key string) (bool, error) {
	k := l.key(kind, key)

	count, err := l.redis.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("failed to count request: %w", err)
	}

	// the first request opens the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, k, l.config.Window).Err(); err != nil {
			return false, fmt.Errorf("failed to set window: %w", err)
		}
	}

	return count <= int64(l.config.Max), nil
}

func (l *Limiter) key(kind account.FlowKind, key string) string {
	return l.config.Prefix + ":" + string(kind) + ":" + key
}
