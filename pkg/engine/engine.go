package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/accesscache"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/config"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/expiration"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/members"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/notify"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/observability"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/rbac"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/storage"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/storage/postgres"
)

// Engine holds the wired access components shared by the binaries
type Engine struct {
	Store      storage.Store
	Cache      rbac.Cache
	Resolver   *rbac.Resolver
	Mapper     *rbac.CapabilityMapper
	Expiration *expiration.Service
	Members    *members.Service
	Registry   *prometheus.Registry
	Metrics    *observability.Metrics
	Logger     *observability.Logger

	config  *config.Config
	closers []io.Closer
}

// New opens storage and the cache, loads the capability policy and wires the
// resolver and services on top of them
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Engine, error) {
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	e := &Engine{
		Registry: registry,
		Metrics:  metrics,
		Logger:   logger,
		config:   cfg,
	}

	store, closer, err := OpenStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	e.Store = store
	e.track(closer)

	cache, closer, err := NewCache(cfg.Cache)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.Cache = cache
	e.track(closer)

	policy := rbac.DefaultPolicy()
	if cfg.Policy.Path != "" {
		policy, err = rbac.LoadPolicyFile(cfg.Policy.Path)
		if err != nil {
			e.Close()
			return nil, err
		}
	}

	e.Resolver = rbac.NewResolver(store,
		rbac.WithCache(cache),
		rbac.WithCacheTTL(cfg.Cache.TTL),
		rbac.WithLogger(logger),
		rbac.WithMetrics(metrics),
	)
	e.Mapper = rbac.NewCapabilityMapper(e.Resolver, policy, rbac.WithMapperMetrics(metrics))
	e.Expiration = expiration.NewService(store, e.Resolver,
		expiration.WithLogger(logger),
		expiration.WithMetrics(metrics),
	)
	e.Members = members.NewService(store, e.Resolver, members.WithLogger(logger))

	logger.WithFields(map[string]interface{}{
		"storage": cfg.Storage.Type,
		"cache":   cfg.Cache.Type,
		"policy":  cfg.Policy.Path,
	}).Info("access engine initialized")

	return e, nil
}

// Sweeper returns a notification sweeper over the engine's store
func (e *Engine) Sweeper(notifier notify.Notifier) *notify.Sweeper {
	return notify.NewSweeper(e.Store, e.Expiration, notifier,
		notify.WithMaxWorkers(e.config.Notifier.MaxWorkers),
		notify.WithLogger(e.Logger),
		notify.WithMetrics(e.Metrics),
	)
}

// WatchPolicy reloads the policy file on change until ctx is done. It is a
// no-op when no policy file is configured or watching is disabled.
func (e *Engine) WatchPolicy(ctx context.Context) error {
	if e.config.Policy.Path == "" || !e.config.Policy.Watch {
		return nil
	}

	watcher, err := rbac.NewPolicyWatcher(e.config.Policy.Path, e.Mapper, e.Logger)
	if err != nil {
		return err
	}
	e.track(watcher)
	go watcher.Run(ctx)
	return nil
}

// HealthChecker reports on the store as a critical dependency and on a
// pingable cache as an optional one
func (e *Engine) HealthChecker() *observability.HealthChecker {
	checker := observability.NewHealthChecker()
	checker.AddCheck("store", true, e.Store.HealthCheck)
	if p, ok := e.Cache.(interface{ Ping(context.Context) error }); ok {
		checker.AddCheck("cache", false, p.Ping)
	}
	return checker
}

// Close releases every resource opened by New, most recent first
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

func (e *Engine) track(c io.Closer) {
	if c != nil {
		e.closers = append(e.closers, c)
	}
}

// OpenStore opens the configured storage backend. The closer is nil for
// backends holding no external resources.
func OpenStore(ctx context.Context, cfg storage.Config) (storage.Store, io.Closer, error) {
	switch cfg.Type {
	case "memory":
		store, err := storage.LoadFixtureFile(cfg.FixturePath)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case "postgres":
		store, err := postgres.NewFromConfig(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// NewCache builds the configured resolution cache
func NewCache(cfg config.CacheConfig) (rbac.Cache, io.Closer, error) {
	switch cfg.Type {
	case "none":
		return nil, nil, nil
	case "memory", "":
		return accesscache.NewMemoryCache(cfg.MaxEntries, cfg.TTL), nil, nil
	case "redis":
		cache, err := accesscache.NewRedisCache(accesscache.RedisConfig{
			URL:        cfg.RedisURL,
			Password:   cfg.RedisPassword,
			DB:         cfg.RedisDB,
			PoolSize:   cfg.RedisPoolSize,
			MaxRetries: cfg.RedisMaxRetries,
			TTL:        cfg.TTL,
			KeyPrefix:  cfg.RedisKeyPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return cache, cache, nil
	default:
		return nil, nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}
