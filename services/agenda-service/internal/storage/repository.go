package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/clinicaflow/clinica/libs/db"
	"github.com/jackc/pgx/v5"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrSlotTaken = errors.New("slot already booked")
	ErrDuplicate = errors.New("already exists")
)

// Repository is the pgx-backed store for templates, exceptions,
// appointments and idempotency keys. Methods taking a pgx.Tx run inside the
// caller's transaction; the rest use the pool directly.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return tx, nil
}

// notFound maps pgx.ErrNoRows to ErrNotFound and wraps everything else.
func notFound(err error, what string) error {
	if db.IsNotFound(err) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", what, err)
}
