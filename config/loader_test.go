package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelarogbonlo/paraclete/checkpoint"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Engine.RetryLimit)
	assert.Equal(t, 300*time.Second, cfg.Engine.BranchTimeout)
	assert.Equal(t, 4, cfg.Engine.BranchConcurrency)
	assert.Equal(t, "memory", cfg.Checkpoint.Type)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  retry_limit: 5
  branch_timeout: 30s
checkpoint:
  type: sqlite
  path: /tmp/test.db
log:
  level: debug
`), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Engine.RetryLimit)
	assert.Equal(t, 30*time.Second, cfg.Engine.BranchTimeout)
	assert.Equal(t, "sqlite", cfg.Checkpoint.Type)
	assert.Equal(t, "/tmp/test.db", cfg.Checkpoint.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched sections keep their defaults.
	assert.Equal(t, 4, cfg.Engine.BranchConcurrency)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  retry_limit: 5\n"), 0o644))

	t.Setenv("PARACLETE_ENGINE_RETRY_LIMIT", "7")
	t.Setenv("PARACLETE_CHECKPOINT_REDIS_HOST", "redis.internal")
	t.Setenv("PARACLETE_TELEMETRY_ENABLED", "true")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Engine.RetryLimit)
	assert.Equal(t, "redis.internal", cfg.Checkpoint.Redis.Host)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Engine.RetryLimit)
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("checkpoint:\n  type: cassandra\n"), 0o644))

	_, err := NewLoader().WithConfigPath(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkpoint.type")
}

func TestStoreConfig_Conversion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Checkpoint.Type = "redis"
	cfg.Checkpoint.Redis.Host = "example"
	cfg.Checkpoint.Redis.Port = 6380

	sc := cfg.Checkpoint.StoreConfig()
	assert.Equal(t, checkpoint.StoreTypeRedis, sc.Type)
	assert.Equal(t, "example", sc.Redis.Host)
	assert.Equal(t, 6380, sc.Redis.Port)
}

func TestLoad_CustomValidator(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error {
			if c.Engine.RetryLimit != 99 {
				return assert.AnError
			}
			return nil
		}).
		Load()
	require.Error(t, err)
}
