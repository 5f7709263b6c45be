// internal/platform/database/postgres.go
package database

import (
	"context"
	"fmt"
	"time"

	"gamerent/internal/platform/config"

	"github.com/cenkalti/backoff/v5"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Open connects to Postgres and retries the initial ping with exponential
// backoff until cfg.ConnectTimeout elapses.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := ping(ctx, db, cfg.ConnectTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return db, nil
}

type pinger interface {
	PingContext(ctx context.Context) error
}

func ping(ctx context.Context, db pinger, maxElapsed time.Duration) error {
	if maxElapsed <= 0 {
		maxElapsed = 30 * time.Second
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return struct{}{}, db.PingContext(pingCtx)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(maxElapsed))
	return err
}
