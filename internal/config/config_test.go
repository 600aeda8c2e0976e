package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "helpdesk-mini", cfg.App.Name)
	assert.Equal(t, 60, cfg.RateLimit.Capacity)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window())
	assert.Equal(t, "memory", cfg.RateLimit.Backend)
	assert.Equal(t, 24*time.Hour, cfg.SLA.DueOffset())
	assert.Equal(t, 30*time.Second, cfg.App.RequestTimeout())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("RATE_LIMIT_CAPACITY", "5")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "10")
	t.Setenv("RATE_LIMIT_BACKEND", "redis")
	t.Setenv("SLA_DUE_OFFSET_HOURS", "48")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.App.Addr())
	assert.Equal(t, 5, cfg.RateLimit.Capacity)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.Window())
	assert.Equal(t, "redis", cfg.RateLimit.Backend)
	assert.Equal(t, 48*time.Hour, cfg.SLA.DueOffset())
}

func TestEnvHelpersFallBackOnBadValues(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "not-a-number")
	t.Setenv("POSTGRES_RUN_MIGRATIONS", "not-a-bool")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.RateLimit.Capacity)
	assert.True(t, cfg.Postgres.RunMigrations)
}
