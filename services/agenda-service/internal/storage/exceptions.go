package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicaflow/clinica/libs/db"
	"github.com/clinicaflow/clinica/services/agenda-service/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ListExceptions returns exceptions on or after from, oldest first. A zero
// from lists everything.
func (r *Repository) ListExceptions(ctx context.Context, professionalID string, from model.Date) ([]model.Exception, error) {
	lower := time.Time{}
	if !from.IsZero() {
		lower = from.In(time.UTC)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, professional_id, exception_date, reason, created_at
		FROM schedule_exceptions
		WHERE professional_id = $1 AND exception_date >= $2::date
		ORDER BY exception_date
	`, professionalID, lower)
	if err != nil {
		return nil, fmt.Errorf("list exceptions: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Exception, error) {
		var e model.Exception
		var d time.Time
		if err := row.Scan(&e.ID, &e.ProfessionalID, &d, &e.Reason, &e.CreatedAt); err != nil {
			return model.Exception{}, err
		}
		e.Date = model.DateOf(d)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan exceptions: %w", err)
	}
	return out, nil
}

func (r *Repository) ListExceptionDates(ctx context.Context, professionalID string, from model.Date) ([]model.Date, error) {
	exceptions, err := r.ListExceptions(ctx, professionalID, from)
	if err != nil {
		return nil, err
	}
	dates := make([]model.Date, 0, len(exceptions))
	for _, e := range exceptions {
		dates = append(dates, e.Date)
	}
	return dates, nil
}

// InsertException returns ErrDuplicate when the date is already blocked.
func (r *Repository) InsertException(ctx context.Context, e model.Exception) (model.Exception, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO schedule_exceptions (id, professional_id, exception_date, reason)
		VALUES ($1, $2, $3::date, $4)
		RETURNING created_at
	`, e.ID, e.ProfessionalID, e.Date.String(), e.Reason).Scan(&e.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return model.Exception{}, ErrDuplicate
		}
		return model.Exception{}, fmt.Errorf("insert exception: %w", err)
	}
	return e, nil
}

func (r *Repository) DeleteException(ctx context.Context, professionalID string, date model.Date) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM schedule_exceptions WHERE professional_id = $1 AND exception_date = $2::date
	`, professionalID, date.String())
	if err != nil {
		return fmt.Errorf("delete exception: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
