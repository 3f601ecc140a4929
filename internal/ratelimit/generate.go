package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/smallbiznis/renderway/internal/config"
)

const keyGenerateCustomer = "generate:customer:%s"

// GenerateLimiter throttles render submissions per customer and holds a
// short lock per (customer, job) so concurrent duplicates of the same
// job collapse to one backend call.
type GenerateLimiter struct {
	enabled bool

	client  *redis.Client
	bucket  *TokenBucket
	release *redis.Script

	rate    float64
	burst   int
	lockTTL time.Duration
}

func NewGenerateLimiter(cfg config.Config) (*GenerateLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.GenerateRate <= 0 || limitCfg.GenerateBurst <= 0 {
		return nil, errors.New("generate rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &GenerateLimiter{
		enabled: true,
		client:  client,
		bucket:  NewTokenBucket(client),
		release: redis.NewScript(jobLockReleaseScript),
		rate:    limitCfg.GenerateRate,
		burst:   limitCfg.GenerateBurst,
		lockTTL: time.Duration(limitCfg.JobLockTTLSeconds) * time.Second,
	}, nil
}

func (l *GenerateLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *GenerateLimiter) AllowCustomer(ctx context.Context, customerID string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyGenerateCustomer, strings.TrimSpace(customerID)), l.rate, l.burst)
}
