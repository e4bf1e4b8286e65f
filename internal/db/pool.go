package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Limits bounds the connection pool. Zero fields fall back to defaults, so
// db.Limits{} is a usable value for tools and tests.
type Limits struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

func (l Limits) withDefaults() Limits {
	if l.MaxConns <= 0 {
		l.MaxConns = 20
	}
	if l.MinConns <= 0 {
		l.MinConns = 2
	}
	if l.MinConns > l.MaxConns {
		l.MinConns = l.MaxConns
	}
	if l.MaxConnLifetime <= 0 {
		l.MaxConnLifetime = 30 * time.Minute
	}
	if l.MaxConnIdleTime <= 0 {
		l.MaxConnIdleTime = 10 * time.Minute
	}
	return l
}

func Connect(ctx context.Context, databaseURL string, limits Limits) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	limits = limits.withDefaults()
	cfg.MaxConns = limits.MaxConns
	cfg.MinConns = limits.MinConns
	cfg.MaxConnLifetime = limits.MaxConnLifetime
	cfg.MaxConnIdleTime = limits.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}
