package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicaflow/clinica/libs/db"
	"github.com/jackc/pgx/v5"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Delivery is one attempt to hand a reminder to a provider.
type Delivery struct {
	ID            int64     `json:"id"`
	ReminderJobID int64     `json:"reminder_job_id"`
	AppointmentID string    `json:"appointment_id"`
	Channel       string    `json:"channel"`
	Recipient     string    `json:"recipient"`
	ProviderID    string    `json:"provider_id,omitempty"`
	Status        string    `json:"status"`
	FailureReason string    `json:"failure_reason,omitempty"`
	Body          string    `json:"body"`
	CreatedAt     time.Time `json:"created_at"`
}

// Deliveries writes inside the consumer's transaction and reads from the
// pool for the history endpoint.
type Deliveries struct {
	pool *db.Pool
}

func NewDeliveries(pool *db.Pool) *Deliveries {
	return &Deliveries{pool: pool}
}

// Record stores d and returns its id.
func (s *Deliveries) Record(ctx context.Context, tx pgx.Tx, d Delivery) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO deliveries (reminder_job_id, appointment_id, channel, recipient, provider_id, status, failure_reason, body)
		VALUES (@job, @appointment, @channel, @recipient, @provider, @status, @reason, @body)
		RETURNING id
	`, pgx.NamedArgs{
		"job":         d.ReminderJobID,
		"appointment": d.AppointmentID,
		"channel":     d.Channel,
		"recipient":   d.Recipient,
		"provider":    d.ProviderID,
		"status":      d.Status,
		"reason":      d.FailureReason,
		"body":        d.Body,
	}).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("record %s delivery for %s: %w", d.Channel, d.AppointmentID, err)
	}
	return id, nil
}

// ForAppointment lists deliveries newest first.
func (s *Deliveries) ForAppointment(ctx context.Context, appointmentID string, limit int) ([]Delivery, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, reminder_job_id, appointment_id, channel, recipient, provider_id, status, failure_reason, body, created_at
		FROM deliveries
		WHERE appointment_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, appointmentID, limit)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Delivery])
	if err != nil {
		return nil, fmt.Errorf("scan deliveries: %w", err)
	}
	return out, nil
}
