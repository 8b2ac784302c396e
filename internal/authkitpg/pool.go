package authkitpg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the part of *pgxpool.Pool the stores run statements through.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Querier = (*pgxpool.Pool)(nil)

// BuildPool creates a pgx pool with sane defaults.
func BuildPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("authkitpg.pool.parse: %w", err)
	}
	config.MinConns = 1
	config.MaxConns = 8
	config.MaxConnLifetime = 30 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("authkitpg.pool.open: %w", err)
	}
	return pool, nil
}

// Stores bundles the pgx-backed user and refresh token stores over one pool.
type Stores struct {
	Pool          *pgxpool.Pool
	Users         *PostgresUserStore
	RefreshTokens *PostgresRefreshTokenStore
}

// OpenStores builds the pool, checks connectivity, and applies migrations.
func OpenStores(ctx context.Context, databaseURL string) (*Stores, error) {
	pool, err := BuildPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if pingErr := pool.Ping(ctx); pingErr != nil {
		pool.Close()
		return nil, fmt.Errorf("authkitpg.pool.ping: %w", pingErr)
	}
	if migrateErr := Migrate(ctx, pool); migrateErr != nil {
		pool.Close()
		return nil, migrateErr
	}
	return &Stores{
		Pool:          pool,
		Users:         NewPostgresUserStore(pool),
		RefreshTokens: NewPostgresRefreshTokenStore(pool),
	}, nil
}

// Close releases the pool.
func (stores *Stores) Close() {
	stores.Pool.Close()
}
