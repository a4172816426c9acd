package jobs

import (
	"context"
	"fmt"
	"time"

	otelx "github.com/clinicaflow/clinica/libs/otel"
	"github.com/jackc/pgx/v5"
)

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Insert stores a pending job. It reports false when the same appointment,
// channel and offset is already scheduled.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, job Job) (bool, error) {
	tc := otelx.Capture(ctx)
	tag, err := tx.Exec(ctx, `
		INSERT INTO reminder_jobs (appointment_id, professional_id, patient_id, patient_name, channel, recipient,
			offset_minutes, starts_at, remind_at, modality, timezone, next_run_at, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $9, $12, $13)
		ON CONFLICT (appointment_id, channel, offset_minutes) DO NOTHING
	`, job.AppointmentID, job.ProfessionalID, job.PatientID, job.PatientName, job.Channel, job.Recipient,
		job.OffsetMinutes, job.StartsAt, job.RemindAt, job.Modality, job.Timezone, tc.Parent, tc.State)
	if err != nil {
		return false, fmt.Errorf("insert reminder job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) FetchDue(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]Job, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, appointment_id, professional_id, patient_id, patient_name, channel, recipient, offset_minutes,
			starts_at, remind_at, modality, timezone, attempts, max_attempts, next_run_at, traceparent, tracestate
		FROM reminder_jobs
		WHERE status = 'pending' AND next_run_at <= $1
		ORDER BY next_run_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch due reminders: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.AppointmentID, &j.ProfessionalID, &j.PatientID, &j.PatientName, &j.Channel,
			&j.Recipient, &j.OffsetMinutes, &j.StartsAt, &j.RemindAt, &j.Modality, &j.Timezone, &j.Attempts,
			&j.MaxAttempts, &j.NextRunAt, &j.Traceparent, &j.Tracestate); err != nil {
			return nil, fmt.Errorf("scan reminder job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *Repository) MarkProcessed(ctx context.Context, tx pgx.Tx, ids []int64) error {
	return r.setStatus(ctx, tx, ids, StatusProcessed)
}

func (r *Repository) MarkExpired(ctx context.Context, tx pgx.Tx, ids []int64) error {
	return r.setStatus(ctx, tx, ids, StatusExpired)
}

func (r *Repository) setStatus(ctx context.Context, tx pgx.Tx, ids []int64, status string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = $2, updated_at = now()
		WHERE id = ANY($1)
	`, ids, status)
	if err != nil {
		return fmt.Errorf("mark reminder jobs %s: %w", status, err)
	}
	return nil
}

// MarkFailed records a failed attempt. The job stays pending until
// attempts reaches maxAttempts.
func (r *Repository) MarkFailed(ctx context.Context, tx pgx.Tx, id int64, attempts, maxAttempts int, nextRunAt time.Time, lastError string) error {
	status := StatusPending
	if attempts >= maxAttempts {
		status = StatusFailed
	}
	_, err := tx.Exec(ctx, `
		UPDATE reminder_jobs
		SET attempts = $2,
		    status = $3,
		    next_run_at = $4,
		    last_error = $5,
		    updated_at = now()
		WHERE id = $1
	`, id, attempts, status, nextRunAt, lastError)
	if err != nil {
		return fmt.Errorf("mark reminder job failed: %w", err)
	}
	return nil
}

// CancelForAppointment cancels every pending job of an appointment.
func (r *Repository) CancelForAppointment(ctx context.Context, tx pgx.Tx, appointmentID string) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = 'cancelled', updated_at = now()
		WHERE appointment_id = $1 AND status = 'pending'
	`, appointmentID)
	if err != nil {
		return 0, fmt.Errorf("cancel reminder jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}
