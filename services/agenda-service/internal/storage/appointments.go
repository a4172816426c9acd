package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clinicaflow/clinica/libs/db"
	"github.com/clinicaflow/clinica/services/agenda-service/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const appointmentColumns = `id::text, professional_id, patient_id, patient_name, patient_email, patient_phone, starts_at, modality, notes, status,
	price_cents, payment_status, COALESCE(series_id::text, ''), sequence, created_at, updated_at`

// CreateAppointment inserts appt and returns the stored row. It returns
// ErrSlotTaken when a non-cancelled appointment already holds the instant.
func (r *Repository) CreateAppointment(ctx context.Context, tx pgx.Tx, appt model.Appointment) (model.Appointment, error) {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if appt.Status == "" {
		appt.Status = model.StatusScheduled
	}
	if appt.PaymentStatus == "" {
		appt.PaymentStatus = model.PaymentPending
	}
	if appt.Sequence == 0 {
		appt.Sequence = 1
	}
	var seriesID *string
	if appt.SeriesID != "" {
		seriesID = &appt.SeriesID
	}
	row := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, professional_id, patient_id, patient_name, patient_email, patient_phone,
			starts_at, modality, notes, status, price_cents, payment_status, series_id, sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING `+appointmentColumns,
		appt.ID, appt.ProfessionalID, appt.PatientID, appt.PatientName, appt.PatientEmail, appt.PatientPhone, appt.StartsAt.UTC(), string(appt.Modality), appt.Notes,
		string(appt.Status), appt.PriceCents, string(appt.PaymentStatus), seriesID, appt.Sequence)
	saved, err := scanAppointment(row)
	if err != nil {
		if db.IsConflict(err) {
			return model.Appointment{}, ErrSlotTaken
		}
		return model.Appointment{}, fmt.Errorf("insert appointment: %w", err)
	}
	return saved, nil
}

func (r *Repository) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Appointment{}, ErrNotFound
	}
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if err != nil {
		return model.Appointment{}, notFound(err, "get appointment")
	}
	return appt, nil
}

func (r *Repository) GetAppointmentForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Appointment{}, ErrNotFound
	}
	appt, err := scanAppointment(tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return model.Appointment{}, notFound(err, "lock appointment")
	}
	return appt, nil
}

// UpdateStatus sets the status and stamps cancelled_at when cancelling.
func (r *Repository) UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status model.Status) (model.Appointment, error) {
	appt, err := scanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
			cancelled_at = CASE WHEN $2 = 'cancelled' THEN now() ELSE cancelled_at END,
			updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns, id, string(status)))
	if err != nil {
		return model.Appointment{}, notFound(err, "update appointment status")
	}
	return appt, nil
}

// MarkPaid is idempotent; it reports whether the row changed.
func (r *Repository) MarkPaid(ctx context.Context, tx pgx.Tx, id string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET payment_status = 'paid', updated_at = now()
		WHERE id = $1 AND payment_status <> 'paid'
	`, id)
	if err != nil {
		return false, fmt.Errorf("mark appointment paid: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListBookedInstants returns start instants of non-cancelled appointments
// starting at or after from.
func (r *Repository) ListBookedInstants(ctx context.Context, professionalID string, from time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT starts_at
		FROM appointments
		WHERE professional_id = $1 AND status <> 'cancelled' AND starts_at >= $2
		ORDER BY starts_at
	`, professionalID, from)
	if err != nil {
		return nil, fmt.Errorf("list booked instants: %w", err)
	}
	instants, err := pgx.CollectRows(rows, pgx.RowTo[time.Time])
	if err != nil {
		return nil, fmt.Errorf("scan booked instants: %w", err)
	}
	return instants, nil
}

func (r *Repository) IsSlotFree(ctx context.Context, professionalID string, at time.Time) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE professional_id = $1 AND starts_at = $2 AND status <> 'cancelled'
		)
	`, professionalID, at.UTC()).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check slot: %w", err)
	}
	return !taken, nil
}

type AppointmentFilter struct {
	ProfessionalID string
	PatientID      string
	From, To       time.Time
	Limit          int
}

func (r *Repository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]model.Appointment, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.ProfessionalID != "" {
		add("professional_id = $%d", f.ProfessionalID)
	}
	if f.PatientID != "" {
		add("patient_id = $%d", f.PatientID)
	}
	if !f.From.IsZero() {
		add("starts_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("starts_at < $%d", f.To)
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit)
	query += fmt.Sprintf(` ORDER BY starts_at LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	appts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Appointment, error) {
		return scanAppointment(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan appointments: %w", err)
	}
	return appts, nil
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var modality, status, payment string
	if err := row.Scan(
		&appt.ID,
		&appt.ProfessionalID,
		&appt.PatientID,
		&appt.PatientName,
		&appt.PatientEmail,
		&appt.PatientPhone,
		&appt.StartsAt,
		&modality,
		&appt.Notes,
		&status,
		&appt.PriceCents,
		&payment,
		&appt.SeriesID,
		&appt.Sequence,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	); err != nil {
		return model.Appointment{}, err
	}
	appt.Modality = model.Modality(modality)
	appt.Status = model.Status(status)
	appt.PaymentStatus = model.PaymentStatus(payment)
	return appt, nil
}
