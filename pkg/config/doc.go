// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration for the access binaries
// from ACCESS_* environment variables with sensible defaults for all
// settings.
//
// # Configuration Structure
//
// Storage settings:
//
//	ACCESS_STORAGE_TYPE="postgres"  # memory, postgres
//	ACCESS_FIXTURE_PATH="/etc/access/fixture.yaml"
//	ACCESS_POSTGRES_URL="postgres://localhost/access"
//	ACCESS_POSTGRES_MAX_CONNS="20"
//
// Cache settings:
//
//	ACCESS_CACHE_TYPE="redis"  # memory, redis, none
//	ACCESS_CACHE_TTL="15m"
//	ACCESS_REDIS_URL="redis://localhost:6379"
//	ACCESS_REDIS_POOL_SIZE="10"
//
// Policy and notifier settings:
//
//	ACCESS_POLICY_PATH="/etc/access/policy.yaml"
//	ACCESS_POLICY_WATCH="true"
//	ACCESS_NOTIFY_SCHEDULE="@hourly"
//	ACCESS_NOTIFY_MAX_WORKERS="4"
//
// Observability settings:
//
//	ACCESS_LOG_LEVEL="info"  # debug, info, warn, error
//	ACCESS_METRICS_ENABLED="true"
//	ACCESS_METRICS_ADDR=":9090"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Storage: %s\n", cfg.Storage.Type)
//	fmt.Printf("Cache: %s (ttl %s)\n", cfg.Cache.Type, cfg.Cache.TTL)
//
// # Related Packages
//
//   - pkg/storage: Uses storage configuration
//   - pkg/accesscache: Uses cache configuration
//   - pkg/notify: Uses notifier configuration
package config
