package config

import (
	"log/slog"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v2"
)

// Config is the top-level configuration for the caching and coordination
// service, composed of one section per subsystem.
type Config struct {
	Cache      CacheConfig      `yaml:"cache"`
	Lock       LockConfig       `yaml:"lock"`
	EventStore EventStoreConfig `yaml:"eventstore"`
	Redis      RedisConfig      `yaml:"redis"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// CacheConfig sizes and times out the L1/L2 tiers and the write-behind and
// refresh-ahead strategies.
type CacheConfig struct {
	L1Capacity            int     `yaml:"l1_capacity"`
	L2Capacity            int     `yaml:"l2_capacity"`
	DefaultTTLSec         int     `yaml:"default_ttl_sec"`
	WriteBehindBatchSize  int     `yaml:"write_behind_batch_size"`
	WriteBehindIntervalMs int     `yaml:"write_behind_interval_ms"`
	RefreshAheadThreshold float64 `yaml:"refresh_ahead_threshold"`
}

// LockConfig governs the distributed mutex/rwlock lease and the background
// deadlock scan.
type LockConfig struct {
	LeaseDurationMs      int `yaml:"lease_duration_ms"`
	DefaultTimeoutMs     int `yaml:"default_timeout_ms"`
	PollIntervalMs       int `yaml:"poll_interval_ms"`
	DeadlockScanMs       int `yaml:"deadlock_scan_ms"`
}

// EventStoreConfig governs projection catch-up/live batching and the saga
// timeout scan.
type EventStoreConfig struct {
	ProjectionCatchUpBatchSize int `yaml:"projection_catch_up_batch_size"`
	ProjectionLiveBatchSize    int `yaml:"projection_live_batch_size"`
	ProjectionLivePollMs       int `yaml:"projection_live_poll_ms"`
	SagaTimeoutScanSec         int `yaml:"saga_timeout_scan_sec"`
}

// RedisConfig is shared by the L2/backing store, the distributed lock, the
// event bus, and the event store's Redis-backed deployments.
type RedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	KeyPrefix  string `yaml:"key_prefix"`
	MaxRetries int    `yaml:"max_retries"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the process-wide singleton config, loading it from
// CONFIG_PATH (default "config.yaml") on first use.
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file, using defaults", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		instance = cfg
	})
	return instance
}

// LoadConfig loads config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := getEnvInt("OCX_CACHE_L1_CAPACITY", 0); v > 0 {
		c.Cache.L1Capacity = v
	}
	if v := getEnvInt("OCX_CACHE_L2_CAPACITY", 0); v > 0 {
		c.Cache.L2Capacity = v
	}
	if v := getEnvInt("OCX_CACHE_DEFAULT_TTL_SEC", 0); v > 0 {
		c.Cache.DefaultTTLSec = v
	}
	if v := getEnvInt("OCX_CACHE_WRITE_BEHIND_BATCH_SIZE", 0); v > 0 {
		c.Cache.WriteBehindBatchSize = v
	}
	if v := getEnvInt("OCX_CACHE_WRITE_BEHIND_INTERVAL_MS", 0); v > 0 {
		c.Cache.WriteBehindIntervalMs = v
	}
	if v := getEnvFloat("OCX_CACHE_REFRESH_AHEAD_THRESHOLD", 0); v > 0 {
		c.Cache.RefreshAheadThreshold = v
	}

	if v := getEnvInt("OCX_LOCK_LEASE_DURATION_MS", 0); v > 0 {
		c.Lock.LeaseDurationMs = v
	}
	if v := getEnvInt("OCX_LOCK_DEFAULT_TIMEOUT_MS", 0); v > 0 {
		c.Lock.DefaultTimeoutMs = v
	}
	if v := getEnvInt("OCX_LOCK_POLL_INTERVAL_MS", 0); v > 0 {
		c.Lock.PollIntervalMs = v
	}
	if v := getEnvInt("OCX_LOCK_DEADLOCK_SCAN_MS", 0); v > 0 {
		c.Lock.DeadlockScanMs = v
	}

	if v := getEnvInt("OCX_EVENTSTORE_CATCHUP_BATCH_SIZE", 0); v > 0 {
		c.EventStore.ProjectionCatchUpBatchSize = v
	}
	if v := getEnvInt("OCX_EVENTSTORE_LIVE_BATCH_SIZE", 0); v > 0 {
		c.EventStore.ProjectionLiveBatchSize = v
	}
	if v := getEnvInt("OCX_EVENTSTORE_LIVE_POLL_MS", 0); v > 0 {
		c.EventStore.ProjectionLivePollMs = v
	}
	if v := getEnvInt("OCX_EVENTSTORE_SAGA_TIMEOUT_SCAN_SEC", 0); v > 0 {
		c.EventStore.SagaTimeoutScanSec = v
	}

	c.Redis.Addr = getEnv("OCX_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("OCX_REDIS_PASSWORD", c.Redis.Password)
	if v := getEnvInt("OCX_REDIS_DB", -1); v >= 0 {
		c.Redis.DB = v
	}
	c.Redis.KeyPrefix = getEnv("OCX_REDIS_KEY_PREFIX", c.Redis.KeyPrefix)
	if v := getEnvInt("OCX_REDIS_MAX_RETRIES", 0); v > 0 {
		c.Redis.MaxRetries = v
	}

	c.Metrics.Enabled = getEnvBool("OCX_METRICS_ENABLED", c.Metrics.Enabled)
	c.Metrics.Addr = getEnv("OCX_METRICS_ADDR", c.Metrics.Addr)
	c.Metrics.Path = getEnv("OCX_METRICS_PATH", c.Metrics.Path)

	c.Logging.Level = getEnv("OCX_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("OCX_LOG_FORMAT", c.Logging.Format)

	c.applyDefaults()
}

func (c *Config) applyDefaults() {
	if c.Cache.L1Capacity == 0 {
		c.Cache.L1Capacity = 10_000
	}
	if c.Cache.L2Capacity == 0 {
		c.Cache.L2Capacity = 100_000
	}
	if c.Cache.DefaultTTLSec == 0 {
		c.Cache.DefaultTTLSec = 300
	}
	if c.Cache.WriteBehindBatchSize == 0 {
		c.Cache.WriteBehindBatchSize = 100
	}
	if c.Cache.WriteBehindIntervalMs == 0 {
		c.Cache.WriteBehindIntervalMs = 1000
	}
	if c.Cache.RefreshAheadThreshold == 0 {
		c.Cache.RefreshAheadThreshold = 0.8
	}

	if c.Lock.LeaseDurationMs == 0 {
		c.Lock.LeaseDurationMs = 30_000
	}
	if c.Lock.DefaultTimeoutMs == 0 {
		c.Lock.DefaultTimeoutMs = 10_000
	}
	if c.Lock.PollIntervalMs == 0 {
		c.Lock.PollIntervalMs = 50
	}
	if c.Lock.DeadlockScanMs == 0 {
		c.Lock.DeadlockScanMs = 1000
	}

	if c.EventStore.ProjectionCatchUpBatchSize == 0 {
		c.EventStore.ProjectionCatchUpBatchSize = 100
	}
	if c.EventStore.ProjectionLiveBatchSize == 0 {
		c.EventStore.ProjectionLiveBatchSize = 10
	}
	if c.EventStore.ProjectionLivePollMs == 0 {
		c.EventStore.ProjectionLivePollMs = 100
	}
	if c.EventStore.SagaTimeoutScanSec == 0 {
		c.EventStore.SagaTimeoutScanSec = 10
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "ocx:coordination:"
	}
	if c.Redis.MaxRetries == 0 {
		c.Redis.MaxRetries = 3
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func (c *Config) IsMetricsEnabled() bool {
	return c.Metrics.Enabled
}
