package db

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// Migrate applies every pending goose migration found at dir inside fsys.
// goose needs a *sql.DB, so one is opened on top of the pool and closed
// afterwards; the pool itself stays open.
func Migrate(ctx context.Context, pool *Pool, fsys fs.FS, dir string, logger *zap.Logger) error {
	if dir != "" && dir != "." {
		sub, err := fs.Sub(fsys, dir)
		if err != nil {
			return fmt.Errorf("open migrations dir %s: %w", dir, err)
		}
		fsys = sub
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, stdlib.OpenDBFromPool(pool.Pool), fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	defer provider.Close()

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		logger.Info("migration applied",
			zap.Int64("version", r.Source.Version),
			zap.Duration("duration", r.Duration),
		)
	}
	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("get migration version: %w", err)
	}
	logger.Info("database schema ready", zap.Int64("version", version))
	return nil
}
