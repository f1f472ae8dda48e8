package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://postgres@db.example.co:5432/postgres
  service_key: s3cret
platforms:
  medium:
    disabled: true
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 5334, cfg.Server.Port)
	assert.Equal(t, "UTC", cfg.Database.TimeZone)
	assert.Equal(t, "5m", cfg.Scheduler.Interval)
	assert.Equal(t, 60*time.Second, cfg.Publisher.Timeout())
	assert.Equal(t, 30*time.Minute, cfg.Publisher.RunDeadline())
	assert.Equal(t, 1, cfg.Publisher.Concurrency)
	assert.Equal(t, "cadence:publish-scheduled-content", cfg.Redis.LockKey)
	assert.Equal(t, 10*time.Minute, cfg.Redis.TTL())
	assert.True(t, cfg.Platform("medium").Disabled)
	assert.False(t, cfg.Platform("github").Disabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("CADENCE_TEST_FROM_ENV_FILE=yes\n"), 0o600))
	t.Setenv("ENV_FILE", envPath)
	t.Cleanup(func() { _ = os.Unsetenv("CADENCE_TEST_FROM_ENV_FILE") })

	_, err := LoadConfig(writeConfig(t, "server:\n  port: 8080\n"))
	require.NoError(t, err)
	assert.Equal(t, "yes", os.Getenv("CADENCE_TEST_FROM_ENV_FILE"))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{Database: DatabaseConfig{URL: "postgres://localhost/app", ServiceKey: "k"}}
		cfg.SetDefaults()
		return cfg
	}

	cfg := valid()
	cfg.Database.ServiceKey = ""
	assert.ErrorIs(t, cfg.Validate(), ErrMissingDatabase)

	cfg = valid()
	cfg.Scheduler.Interval = "soon"
	assert.ErrorContains(t, cfg.Validate(), "invalid scheduler interval")

	cfg = valid()
	cfg.Publisher.CallTimeout = "1 minute"
	assert.ErrorContains(t, cfg.Validate(), "call_timeout")

	cfg = valid()
	cfg.Publisher.RunTimeout = "forever"
	assert.ErrorContains(t, cfg.Validate(), "run_timeout")

	cfg = valid()
	cfg.Redis.LockTTL = "x"
	assert.ErrorContains(t, cfg.Validate(), "lock_ttl")

	assert.NoError(t, valid().Validate())
}

func TestDurationFallbacks(t *testing.T) {
	assert.Equal(t, 60*time.Second, PublisherConfig{CallTimeout: "-1s"}.Timeout())
	assert.Equal(t, 15*time.Second, PublisherConfig{CallTimeout: "15s"}.Timeout())
	assert.Equal(t, 2*time.Minute, PublisherConfig{RunTimeout: "2m"}.RunDeadline())
	assert.Equal(t, 30*time.Minute, PublisherConfig{RunTimeout: "0s"}.RunDeadline())
	assert.Equal(t, 10*time.Minute, RedisConfig{}.TTL())
	assert.Equal(t, time.Minute, RedisConfig{LockTTL: "1m"}.TTL())
}
