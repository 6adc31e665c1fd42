// White-box tests: applyEnvOverrides/applyDefaults are unexported, so this
// file stays in package config alongside config.go rather than config_test.
package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileReturnsError(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/config.yaml")
	require.Error(t, err)
}

func TestLoadConfigParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	yamlContent := `
cache:
  l1_capacity: 500
  default_ttl_sec: 60
redis:
  addr: "redis.internal:6379"
  key_prefix: "test:"
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Cache.L1Capacity)
	assert.Equal(t, 60, cfg.Cache.DefaultTTLSec)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, "test:", cfg.Redis.KeyPrefix)
}

func TestApplyEnvOverridesFillsDefaultsWhenUnset(t *testing.T) {
	cfg := &Config{}
	cfg.applyEnvOverrides()

	assert.Equal(t, 10_000, cfg.Cache.L1Capacity)
	assert.Equal(t, 100_000, cfg.Cache.L2Capacity)
	assert.Equal(t, 300, cfg.Cache.DefaultTTLSec)
	assert.Equal(t, 30_000, cfg.Lock.LeaseDurationMs)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "ocx:coordination:", cfg.Redis.KeyPrefix)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestApplyEnvOverridesReadsEnvironment(t *testing.T) {
	t.Setenv("OCX_CACHE_L1_CAPACITY", "42")
	t.Setenv("OCX_REDIS_ADDR", "redis.override:6380")
	t.Setenv("OCX_LOG_LEVEL", "debug")

	cfg := &Config{}
	cfg.applyEnvOverrides()

	assert.Equal(t, 42, cfg.Cache.L1Capacity)
	assert.Equal(t, "redis.override:6380", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestIsMetricsEnabledReflectsConfig(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.IsMetricsEnabled())
	cfg.Metrics.Enabled = true
	assert.True(t, cfg.IsMetricsEnabled())
}
