// Package db provides the PostgreSQL audit ledger for dispatch batches. All
// repositories accept a DBTX interface that is satisfied by both
// *pgxpool.Pool and pgx.Tx.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"roofalert/internal/types"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
// Repositories accept this so the same code works inside or outside a
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Open connects a pool and verifies it with a ping.
func Open(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "invalid database url", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create connection pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, types.NewAppError(types.ErrCodeInternalDB, "database ping failed", err)
	}
	return pool, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS dispatch_batches (
		id              TEXT PRIMARY KEY,
		area_id         TEXT NOT NULL,
		status          TEXT NOT NULL,
		damaged_roofs   INTEGER NOT NULL DEFAULT 0,
		orphan_damages  INTEGER NOT NULL DEFAULT 0,
		recipient_count INTEGER NOT NULL DEFAULT 0,
		sent            INTEGER NOT NULL DEFAULT 0,
		failed          INTEGER NOT NULL DEFAULT 0,
		skipped         INTEGER NOT NULL DEFAULT 0,
		started_at      TIMESTAMPTZ NOT NULL,
		finished_at     TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS dispatch_batches_area_idx ON dispatch_batches (area_id, started_at DESC)`,
	`CREATE TABLE IF NOT EXISTS dispatch_outcomes (
		batch_id     TEXT NOT NULL REFERENCES dispatch_batches (id) ON DELETE CASCADE,
		roof_id      INTEGER NOT NULL,
		recipient    TEXT NOT NULL DEFAULT '',
		damage_count INTEGER NOT NULL,
		area_pixels  INTEGER NOT NULL,
		total_cost   NUMERIC(14, 2) NOT NULL,
		status       TEXT NOT NULL,
		reason       TEXT NOT NULL DEFAULT '',
		duration_ms  BIGINT NOT NULL DEFAULT 0,
		recorded_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (batch_id, roof_id)
	)`,
}

// EnsureSchema creates the ledger tables when they do not exist.
func EnsureSchema(ctx context.Context, db DBTX) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, fmt.Sprintf("schema statement %d failed", i+1), err)
		}
	}
	return nil
}
