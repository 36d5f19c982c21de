// Package database manages the PostgreSQL pool the seeder writes through.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// applicationName tags seeder sessions in pg_stat_activity unless the URL
// sets its own.
const applicationName = "pai-seed"

// minServerVersion is PostgreSQL 13, the first release with a built-in
// gen_random_uuid() used by the migrations.
const minServerVersion = 130000

// DB wraps a pgx connection pool.
type DB struct {
	Pool *pgxpool.Pool
}

// ParseURL validates a PostgreSQL connection URL.
func ParseURL(url string) (*pgxpool.Config, error) {
	if url == "" {
		return nil, fmt.Errorf("database URL is empty")
	}
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}
	if cfg.ConnConfig.RuntimeParams["application_name"] == "" {
		cfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	}
	return cfg, nil
}

// poolConfig sizes the pool for a batch run: one tree transaction at a time,
// plus the run-ledger writes made beside it.
func poolConfig(url string, maxConns, minConns int) (*pgxpool.Config, error) {
	cfg, err := ParseURL(url)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = int32(max(maxConns, 2))
	cfg.MinConns = int32(min(max(minConns, 0), int(cfg.MaxConns)))
	cfg.MaxConnIdleTime = 5 * time.Minute
	return cfg, nil
}

// New creates a connection pool and pings the server.
func New(ctx context.Context, url string, maxConns, minConns int) (*DB, error) {
	cfg, err := poolConfig(url, maxConns, minConns)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// HealthCheck returns the server version, or an error when the server is
// unreachable or older than the migrations support.
func (db *DB) HealthCheck(ctx context.Context) (string, error) {
	var version string
	var num int
	err := db.Pool.QueryRow(ctx,
		`SELECT current_setting('server_version'), current_setting('server_version_num')::int`,
	).Scan(&version, &num)
	if err != nil {
		return "", fmt.Errorf("checking database: %w", err)
	}
	if num < minServerVersion {
		return version, fmt.Errorf("postgres %s is too old, need 13 or newer", version)
	}
	return version, nil
}
