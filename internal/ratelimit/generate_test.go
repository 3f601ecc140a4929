package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/renderway/internal/config"
)

func TestDisabledLimiterNeverBlocks(t *testing.T) {
	limiter, err := NewGenerateLimiter(config.Config{})
	require.NoError(t, err)
	require.Nil(t, limiter)

	assert.False(t, limiter.Enabled())

	allowed, err := limiter.AllowCustomer(context.Background(), "42")
	require.NoError(t, err)
	assert.True(t, allowed)

	token, locked, err := limiter.TryLockJob(context.Background(), "42", "job_1")
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Empty(t, token)

	limiter.ReleaseJob(context.Background(), "42", "job_1", token)
}

func TestNewGenerateLimiterValidation(t *testing.T) {
	cfg := config.Config{}
	cfg.RateLimit.Enabled = true

	_, err := NewGenerateLimiter(cfg)
	assert.Error(t, err, "enabled limiter requires a redis addr")

	cfg.RateLimit.RedisAddr = "localhost:6379"
	_, err = NewGenerateLimiter(cfg)
	assert.Error(t, err, "enabled limiter requires a positive rate")
}
