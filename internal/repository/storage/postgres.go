package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var ledgerSchema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		player_id  TEXT PRIMARY KEY,
		balance    NUMERIC(20, 8) NOT NULL DEFAULT 0 CHECK (balance >= 0),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id         BIGSERIAL PRIMARY KEY,
		reference  TEXT NOT NULL UNIQUE,
		player_id  TEXT NOT NULL REFERENCES accounts (player_id),
		amount     NUMERIC(20, 8) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS ledger_entries_player_idx ON ledger_entries (player_id)`,
}

// NewPostgres opens a connection pool and checks the connection.
func NewPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("can't open database: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("can't connect to database: %w", err)
	}

	return pool, nil
}

// InitLedger creates the account tables if they do not exist.
func InitLedger(ctx context.Context, pool *pgxpool.Pool) error {
	for _, query := range ledgerSchema {
		if _, err := pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("can't create table: %w", err)
		}
	}

	return nil
}
