package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicaflow/clinica/services/agenda-service/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (r *Repository) ListTemplates(ctx context.Context, professionalID string) ([]model.WeeklyTemplate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, professional_id, day_of_week, start_minute, end_minute, interval_minutes, updated_at
		FROM weekly_templates
		WHERE professional_id = $1
		ORDER BY day_of_week, updated_at DESC, id
	`, professionalID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	tpls, err := pgx.CollectRows(rows, collectTemplate)
	if err != nil {
		return nil, fmt.Errorf("scan templates: %w", err)
	}
	return tpls, nil
}

// UpsertTemplate replaces the template for tpl's weekday.
func (r *Repository) UpsertTemplate(ctx context.Context, tx pgx.Tx, tpl model.WeeklyTemplate) (model.WeeklyTemplate, error) {
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	row := tx.QueryRow(ctx, `
		INSERT INTO weekly_templates (id, professional_id, day_of_week, start_minute, end_minute, interval_minutes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (professional_id, day_of_week) DO UPDATE
		SET start_minute = EXCLUDED.start_minute,
			end_minute = EXCLUDED.end_minute,
			interval_minutes = EXCLUDED.interval_minutes,
			updated_at = now()
		RETURNING id::text, professional_id, day_of_week, start_minute, end_minute, interval_minutes, updated_at
	`, tpl.ID, tpl.ProfessionalID, int(tpl.DayOfWeek), int(tpl.Start), int(tpl.End), tpl.IntervalMinutes)
	saved, err := scanTemplate(row)
	if err != nil {
		return model.WeeklyTemplate{}, fmt.Errorf("upsert template: %w", err)
	}
	return saved, nil
}

// DeleteTemplatesExcept removes the professional's templates for weekdays
// not listed in keep.
func (r *Repository) DeleteTemplatesExcept(ctx context.Context, tx pgx.Tx, professionalID string, keep []time.Weekday) error {
	days := make([]int16, 0, len(keep))
	for _, d := range keep {
		days = append(days, int16(d))
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM weekly_templates
		WHERE professional_id = $1 AND NOT (day_of_week = ANY($2))
	`, professionalID, days); err != nil {
		return fmt.Errorf("prune templates: %w", err)
	}
	return nil
}

func (r *Repository) DeleteTemplate(ctx context.Context, professionalID string, day time.Weekday) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM weekly_templates WHERE professional_id = $1 AND day_of_week = $2
	`, professionalID, int(day))
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectTemplate(row pgx.CollectableRow) (model.WeeklyTemplate, error) {
	return scanTemplate(row)
}

func scanTemplate(row pgx.Row) (model.WeeklyTemplate, error) {
	var tpl model.WeeklyTemplate
	var day int16
	var start, end int
	if err := row.Scan(&tpl.ID, &tpl.ProfessionalID, &day, &start, &end, &tpl.IntervalMinutes, &tpl.UpdatedAt); err != nil {
		return model.WeeklyTemplate{}, err
	}
	tpl.DayOfWeek = time.Weekday(day)
	tpl.Start = model.ClockTime(start)
	tpl.End = model.ClockTime(end)
	return tpl, nil
}
