package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/storage"
)

const (
	defaultMaxLifetime = time.Hour
	defaultMaxIdleTime = 10 * time.Minute
)

// Open connects to PostgreSQL with the pool settings of config and pings it
func Open(config storage.Config) (*sql.DB, error) {
	if config.PostgresURL == "" {
		return nil, fmt.Errorf("postgres url is required")
	}

	db, err := sql.Open("postgres", config.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.PostgresMaxConns)
	db.SetMaxIdleConns(config.PostgresMinConns)
	db.SetConnMaxLifetime(defaultMaxLifetime)
	db.SetConnMaxIdleTime(defaultMaxIdleTime)

	timeout := config.PostgresTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// NewFromConfig opens the database, applies pending migrations and returns a Store
func NewFromConfig(ctx context.Context, config storage.Config, opts ...Option) (*Store, error) {
	db, err := Open(config)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return New(db, opts...), nil
}
