package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/accesscache"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/notify"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/observability"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/rbac"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Storage configuration
	Storage storage.Config

	// Resolution cache configuration
	Cache CacheConfig

	// Capability policy configuration
	Policy PolicyConfig

	// Expiration notifier configuration
	Notifier NotifierConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// CacheConfig selects and sizes the effective role cache
type CacheConfig struct {
	Type       string // "memory", "redis" or "none"
	TTL        time.Duration
	MaxEntries int

	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisPoolSize   int
	RedisMaxRetries int
	RedisKeyPrefix  string
}

// PolicyConfig locates the capability policy file
type PolicyConfig struct {
	// Path to a YAML policy; empty uses the built-in policy
	Path string
	// Watch reloads the policy when the file changes
	Watch bool
}

// NotifierConfig drives the expiration notification sweep
type NotifierConfig struct {
	Schedule   string // standard cron spec or descriptor such as @hourly
	MaxWorkers int
	RunOnStart bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel string

	MetricsEnabled bool
	MetricsAddr    string
}

// Level returns the structured logger level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Storage:       loadStorageConfig(),
		Cache:         loadCacheConfig(),
		Policy:        loadPolicyConfig(),
		Notifier:      loadNotifierConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if storageType := getEnv("ACCESS_STORAGE_TYPE", ""); storageType != "" {
		cfg.Type = storageType
	}

	// Memory config
	cfg.FixturePath = getEnv("ACCESS_FIXTURE_PATH", cfg.FixturePath)

	// PostgreSQL config
	if pgURL := getEnv("ACCESS_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if maxConns := getEnvInt("ACCESS_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("ACCESS_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("ACCESS_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	return cfg
}

// loadCacheConfig loads cache configuration from environment
func loadCacheConfig() CacheConfig {
	return CacheConfig{
		Type:            strings.ToLower(getEnv("ACCESS_CACHE_TYPE", "memory")),
		TTL:             getEnvDuration("ACCESS_CACHE_TTL", rbac.DefaultCacheTTL),
		MaxEntries:      getEnvInt("ACCESS_CACHE_MAX_ENTRIES", accesscache.DefaultMaxEntries),
		RedisURL:        getEnv("ACCESS_REDIS_URL", ""),
		RedisPassword:   getEnv("ACCESS_REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("ACCESS_REDIS_DB", 0),
		RedisPoolSize:   getEnvInt("ACCESS_REDIS_POOL_SIZE", 10),
		RedisMaxRetries: getEnvInt("ACCESS_REDIS_MAX_RETRIES", 3),
		RedisKeyPrefix:  getEnv("ACCESS_REDIS_KEY_PREFIX", accesscache.DefaultKeyPrefix),
	}
}

// loadPolicyConfig loads policy configuration from environment
func loadPolicyConfig() PolicyConfig {
	return PolicyConfig{
		Path:  getEnv("ACCESS_POLICY_PATH", ""),
		Watch: getEnvBool("ACCESS_POLICY_WATCH", true),
	}
}

// loadNotifierConfig loads notifier configuration from environment
func loadNotifierConfig() NotifierConfig {
	return NotifierConfig{
		Schedule:   getEnv("ACCESS_NOTIFY_SCHEDULE", "@hourly"),
		MaxWorkers: getEnvInt("ACCESS_NOTIFY_MAX_WORKERS", notify.DefaultMaxWorkers),
		RunOnStart: getEnvBool("ACCESS_NOTIFY_RUN_ON_START", false),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       strings.ToLower(getEnv("ACCESS_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("ACCESS_METRICS_ENABLED", true),
		MetricsAddr:    getEnv("ACCESS_METRICS_ADDR", ":9090"),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate storage config based on type
	switch c.Storage.Type {
	case "memory":
		if c.Storage.FixturePath == "" {
			return fmt.Errorf("fixture path is required for memory storage")
		}
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
		if c.Storage.PostgresMaxConns < c.Storage.PostgresMinConns {
			return fmt.Errorf("postgres max conns (%d) must not be below min conns (%d)",
				c.Storage.PostgresMaxConns, c.Storage.PostgresMinConns)
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory or postgres)", c.Storage.Type)
	}

	// Validate cache config
	switch c.Cache.Type {
	case "none":
	case "memory":
		if c.Cache.MaxEntries <= 0 {
			return fmt.Errorf("cache max entries must be positive")
		}
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis cache")
		}
	default:
		return fmt.Errorf("invalid cache type: %s (must be memory, redis, or none)", c.Cache.Type)
	}
	if c.Cache.Type != "none" && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}

	// Validate notifier config
	if _, err := cron.ParseStandard(c.Notifier.Schedule); err != nil {
		return fmt.Errorf("invalid notify schedule %q: %w", c.Notifier.Schedule, err)
	}
	if c.Notifier.MaxWorkers <= 0 {
		return fmt.Errorf("notify max workers must be positive")
	}

	if c.Observability.MetricsEnabled && c.Observability.MetricsAddr == "" {
		return fmt.Errorf("metrics address is required when metrics are enabled")
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
