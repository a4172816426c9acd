package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is the connection pool shared by a service's repositories.
type Pool struct {
	*pgxpool.Pool
}

// Open connects and pings. Pool sizing left out of the URL (pool_max_conns,
// pool_min_conns) defaults to 10 and 1.
func Open(ctx context.Context, databaseURL string) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	applyDefaults(cfg, databaseURL)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping %s@%s: %w", cfg.ConnConfig.User, cfg.ConnConfig.Host, err)
	}
	return &Pool{Pool: pool}, nil
}

func applyDefaults(cfg *pgxpool.Config, raw string) {
	if !hasParam(raw, "pool_max_conns") {
		cfg.MaxConns = 10
	}
	if !hasParam(raw, "pool_min_conns") {
		cfg.MinConns = 1
	}
	if !hasParam(raw, "pool_max_conn_lifetime") {
		cfg.MaxConnLifetime = 30 * time.Minute
	}
	if !hasParam(raw, "pool_max_conn_idle_time") {
		cfg.MaxConnIdleTime = 5 * time.Minute
	}
}

func (p *Pool) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}

// InTx runs fn in a transaction and commits when fn returns nil.
func (p *Pool) InTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, p.Pool, fn)
}

var errNoPool = errors.New("database not configured")

func ReadyCheck(pool *Pool) func(context.Context) error {
	return func(ctx context.Context) error {
		if pool == nil || pool.Pool == nil {
			return errNoPool
		}
		return pool.Ping(ctx)
	}
}

// SQLSTATE codes the repositories branch on.
const (
	CodeUniqueViolation    = "23505"
	CodeExclusionViolation = "23P01"
)

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func IsUniqueViolation(err error) bool { return sqlState(err) == CodeUniqueViolation }

// IsConflict reports unique or exclusion constraint violations. The agenda
// relies on the exclusion constraint to reject overlapping bookings.
func IsConflict(err error) bool {
	switch sqlState(err) {
	case CodeUniqueViolation, CodeExclusionViolation:
		return true
	}
	return false
}

func IsNotFound(err error) bool { return errors.Is(err, pgx.ErrNoRows) }
