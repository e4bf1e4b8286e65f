package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS markets (
		id               TEXT PRIMARY KEY,
		good_id          TEXT NOT NULL,
		quality          INT NOT NULL DEFAULT 0,
		region           TEXT NOT NULL,
		initial_price    NUMERIC(10,4) NOT NULL,
		price_level      INT NOT NULL DEFAULT 0,
		progress         INT NOT NULL DEFAULT 0,
		volume_per_level INT NOT NULL,
		adjustment       NUMERIC(10,4) NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS markets_region_idx ON markets (region)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		owner      TEXT NOT NULL,
		scope      TEXT NOT NULL,
		balance    NUMERIC(20,8) NOT NULL DEFAULT 0 CHECK (balance >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (owner, scope)
	)`,
	`CREATE TABLE IF NOT EXISTS account_transactions (
		id            BIGSERIAL PRIMARY KEY,
		owner         TEXT NOT NULL,
		scope         TEXT NOT NULL,
		amount        NUMERIC(20,8) NOT NULL,
		reason        TEXT NOT NULL,
		balance_after NUMERIC(20,8) NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS account_transactions_owner_idx ON account_transactions (owner, id DESC)`,
	`CREATE TABLE IF NOT EXISTS price_history (
		market_id TEXT NOT NULL,
		day       DATE NOT NULL,
		open      NUMERIC(10,4) NOT NULL,
		high      NUMERIC(10,4) NOT NULL,
		low       NUMERIC(10,4) NOT NULL,
		close     NUMERIC(10,4) NOT NULL,
		UNIQUE (market_id, day)
	)`,
}

// EnsureSchema creates the tables on startup if they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
