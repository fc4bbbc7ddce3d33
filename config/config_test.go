package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetenv clears keys for the duration of the test.
func unsetenv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		old, ok := os.LookupEnv(key)
		require.NoError(t, os.Unsetenv(key))
		t.Cleanup(func() {
			if ok {
				_ = os.Setenv(key, old)
			} else {
				_ = os.Unsetenv(key)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	unsetenv(t, "DB_HOST", "DB_USER", "APP_TIMEZONE", "HTTP_PORT", "LOG_FORMAT", "REDIS_DISABLED", "NOTIFY_OUTBOX",
		"SCHEDULER_ADVANCE_SCHEDULE", "SCHEDULER_ADVANCE_BATCH", "REDIS_AVAILABILITY_TTL")
	t.Setenv("DATABASE_URL", "postgres://plaza@localhost:5432/plazahub")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "plaza-hub", cfg.App.Name)
	assert.Equal(t, time.UTC, cfg.App.Location)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "5 0 * * *", cfg.Scheduler.AdvanceSchedule)
	assert.Equal(t, 500, cfg.Scheduler.AdvanceBatchSize)
	assert.Equal(t, 30*time.Second, cfg.Redis.AvailabilityTTL)
	assert.False(t, cfg.Notify.Outbox)
	assert.NotNil(t, cfg.Features)
}

func TestLoad_DatabaseURLFromParts(t *testing.T) {
	unsetenv(t, "DATABASE_URL", "DB_PORT", "DB_SSLMODE")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "plaza")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "plazas")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://plaza:secret@db:5432/plazas?sslmode=disable", cfg.Database.URL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://plaza@localhost/plazahub")
	t.Setenv("APP_TIMEZONE", "no/such_zone")
	t.Setenv("REDIS_AVAILABILITY_TTL", "2m")
	t.Setenv("DB_MIGRATE", "true")
	t.Setenv("HTTP_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, cfg.App.Location, "unknown zone falls back to UTC")
	assert.Equal(t, 2*time.Minute, cfg.Redis.AvailabilityTTL)
	assert.True(t, cfg.Database.Migrate)
	assert.Equal(t, 9090, cfg.HTTP.Port, "unparsable values keep the default")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database:      DatabaseConfig{URL: "postgres://x", MaxConns: 4, MinConns: 1},
			HTTP:          HTTPConfig{Port: 9090},
			Scheduler:     SchedulerConfig{AdvanceBatchSize: 10},
			Observability: ObservabilityConfig{LogFormat: "json"},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no database", func(c *Config) { c.Database.URL = "" }, "DATABASE_URL"},
		{"min above max", func(c *Config) { c.Database.MinConns = 5 }, "DB_MIN_CONNS"},
		{"port", func(c *Config) { c.HTTP.Port = 70000 }, "HTTP_PORT"},
		{"batch", func(c *Config) { c.Scheduler.AdvanceBatchSize = 0 }, "SCHEDULER_ADVANCE_BATCH"},
		{"outbox without redis", func(c *Config) { c.Notify.Outbox, c.Redis.Disabled = true, true }, "NOTIFY_OUTBOX requires Redis"},
		{"log format", func(c *Config) { c.Observability.LogFormat = "xml" }, "LOG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestLoadFiles(t *testing.T) {
	unsetenv(t, "DATABASE_URL", "SCHEDULER_ADVANCE_BATCH")
	t.Setenv("LOG_LEVEL", "debug")

	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(env, []byte(
		"DATABASE_URL=postgres://file@db/plazahub\nSCHEDULER_ADVANCE_BATCH=50\nLOG_LEVEL=warn\n",
	), 0o600))

	cfg, err := LoadFiles(filepath.Join(dir, "missing.env"), env)
	require.NoError(t, err)

	assert.Equal(t, "postgres://file@db/plazahub", cfg.Database.URL)
	assert.Equal(t, 50, cfg.Scheduler.AdvanceBatchSize)
	assert.Equal(t, "debug", cfg.Observability.LogLevel, "process environment wins over the file")
}

func TestLoad_InvalidConfig(t *testing.T) {
	unsetenv(t, "DATABASE_URL", "DB_HOST", "DB_USER")

	_, err := Load()
	assert.ErrorContains(t, err, "config validation")
}
