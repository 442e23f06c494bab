package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "POSTGRES_DSN", "KAFKA_BROKERS", "GATEWAY_TIMEOUT", "CURRENCY", "STRIPE_ALLOWED_COUNTRIES"} {
		t.Setenv(k, "")
	}

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Empty(t, cfg.PostgresDSN)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, 10*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, "INR", cfg.Currency)
	assert.Equal(t, []string{"IN"}, cfg.StripeAllowedCountries)
}

func TestLoad_EnvironmentAndDotenv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("GATEWAY_TIMEOUT", "3s")
	t.Setenv("CURRENCY", "usd")
	t.Setenv("REDIS_ADDR", "redis:6379")

	env := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(env, []byte("REDIS_ADDR=ignored:1\nJWT_SECRET=from-file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("JWT_SECRET") })

	cfg, err := Load(env)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 3*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, "USD", cfg.Currency)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, "from-file", cfg.JWTSecret)
}

func TestLoad_RejectsBadDuration(t *testing.T) {
	t.Setenv("GATEWAY_TIMEOUT", "soon")
	_, err := Load()
	assert.ErrorContains(t, err, "GATEWAY_TIMEOUT")
}
