package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "TASKS", cfg.NATS.Stream)
	assert.Equal(t, []string{"task.*"}, cfg.NATS.Subjects)
	assert.Equal(t, 300*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 3*time.Second, cfg.Timeouts.Persistence)
	assert.Equal(t, 500*time.Millisecond, cfg.Timeouts.Cache)
	assert.Equal(t, time.Second, cfg.Timeouts.Publish)
	assert.False(t, cfg.Observability.Enabled)
	assert.Contains(t, cfg.Database.URL, "postgres://")
	assert.Equal(t, "0.0.0.0:8080", cfg.Address())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("CACHE_TTL", "60")
	t.Setenv("PUBLISH_TIMEOUT", "250ms")
	t.Setenv("OBSERVABILITY_ENABLED", "true")
	t.Setenv("CONSUMER_SUBJECTS", "task.completed, task.deleted,")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/x")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeouts.Publish)
	assert.True(t, cfg.Observability.Enabled)
	assert.Equal(t, []string{"task.completed", "task.deleted"}, cfg.Consumer.Subjects)
	assert.Equal(t, "postgres://u:p@db:5432/x", cfg.Database.URL)
}

func TestValidate(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("CACHE_TIMEOUT", "0s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "CACHE_TIMEOUT")

	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("CACHE_TIMEOUT", "")
	_, err = Load()
	assert.NoError(t, err)
}

func TestDatabaseDSN(t *testing.T) {
	parts := DatabaseConfig{Host: "db", Port: "5432", Name: "tasks", User: "app", Password: "pw", SSLMode: "disable"}
	assert.Equal(t, "postgres://app:pw@db:5432/tasks?sslmode=disable", parts.DSN())

	parts.URL = "postgres://elsewhere/tasks"
	assert.Equal(t, "postgres://elsewhere/tasks", parts.DSN())
}
