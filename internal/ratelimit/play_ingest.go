package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/tunevault/tunevault/internal/config"
)

const keyPlayIngestUser = "plays:ingest:user:%s"

// PlayIngestLimiter throttles play-event submissions per caller so a buggy or
// hostile client cannot inflate streaming earnings. Disabled limiters allow
// everything.
type PlayIngestLimiter struct {
	enabled bool

	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewPlayIngestLimiter(cfg config.Config) (*PlayIngestLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, fmt.Errorf("play ingest rate limit requires a redis addr")
	}
	if limitCfg.PlayIngestRate <= 0 || limitCfg.PlayIngestBurst <= 0 {
		return nil, fmt.Errorf("play ingest rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})

	return &PlayIngestLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    limitCfg.PlayIngestRate,
		burst:   limitCfg.PlayIngestBurst,
	}, nil
}

func (l *PlayIngestLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *PlayIngestLimiter) AllowUser(ctx context.Context, userID string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyPlayIngestUser, strings.TrimSpace(userID)), l.rate, l.burst)
}
