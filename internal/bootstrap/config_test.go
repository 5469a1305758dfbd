package bootstrap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := LoadConfig()

	assert.Error(t, err)
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "convo:", cfg.KeyPrefix)
	assert.Equal(t, 5, cfg.RateLimitPoints)
	assert.Equal(t, 10*time.Second, cfg.RateLimitWindow)
	assert.False(t, cfg.RateLimitFailOpen)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("RATE_LIMIT_POINTS", "20")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "30")
	t.Setenv("RATE_LIMIT_FAIL_OPEN", "true")
	t.Setenv("REDIS_KEY_PREFIX", "test:")

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, 20, cfg.RateLimitPoints)
	assert.Equal(t, 30*time.Second, cfg.RateLimitWindow)
	assert.True(t, cfg.RateLimitFailOpen)
	assert.Equal(t, "test:", cfg.KeyPrefix)
}

func TestGetEnvIntInvalidFallsBack(t *testing.T) {
	t.Setenv("RATE_LIMIT_POINTS", "not-a-number")

	assert.Equal(t, 5, getEnvInt("RATE_LIMIT_POINTS", 5))
}
