package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("APP_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("JWT_SECRET", "secret")

	cfg := LoadConfig()

	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, "http://localhost:9090", cfg.BaseURL)
	assert.Equal(t, 72*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 24*time.Hour, cfg.Auth.VerificationHorizon)
	assert.True(t, cfg.Auth.RequireVerified)
	assert.Equal(t, time.Minute, cfg.CSRF.TTL)
	assert.Equal(t, "X-CSRF-Token", cfg.CSRF.HeaderName)
	assert.Equal(t, []string{"/csrf"}, cfg.CSRF.ExemptPaths)
	assert.False(t, cfg.TrustProxy)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("CSRF_TTL", "30s")
	t.Setenv("CSRF_EXEMPT_PATHS", "/csrf, /webhooks ,")
	t.Setenv("AUTH_REQUIRE_VERIFIED_EMAIL", "false")
	t.Setenv("MQ_BACKEND", "RabbitMQ")
	t.Setenv("TRUST_PROXY", "true")

	cfg := LoadConfig()

	assert.Equal(t, 30*time.Second, cfg.CSRF.TTL)
	assert.Equal(t, []string{"/csrf", "/webhooks"}, cfg.CSRF.ExemptPaths)
	assert.False(t, cfg.Auth.RequireVerified)
	assert.Equal(t, "rabbitmq", cfg.MQ.Backend)
	assert.True(t, cfg.TrustProxy)
}

func TestValidateReportsMissingSecrets(t *testing.T) {
	cfg := Config{CSRF: CSRFConfig{TTL: time.Second}, AppKey: "short"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APP_KEY")
	assert.Contains(t, err.Error(), "JWT_SECRET")
}
