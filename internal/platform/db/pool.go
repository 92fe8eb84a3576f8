// Package db opens the Moka connection pool. One pool is created per batch
// run and reused serially across cases; it must not be shared between
// concurrently running batches.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Cases are processed one at a time, so the pool stays small: one working
// connection plus one spare for the odd overlapping status write.
const (
	defaultMaxConns int32 = 2
	defaultMinConns int32 = 1
)

// poolLimits resolves the configured pool bounds. Zero or negative values
// fall back to the batch defaults, and the floor never exceeds the ceiling.
func poolLimits(maxConns, minConns int32) (int32, int32) {
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	if minConns <= 0 {
		minConns = defaultMinConns
	}
	if minConns > maxConns {
		minConns = maxConns
	}
	return maxConns, minConns
}

// NewPool connects to the laboratory database and verifies the connection
// with a ping before the batch starts, so an unreachable database fails the
// run up front rather than on the first case.
func NewPool(ctx context.Context, databaseURL string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	cfg.MaxConns, cfg.MinConns = poolLimits(maxConns, minConns)
	cfg.ConnConfig.RuntimeParams["application_name"] = "gel-reports"

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
