package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clinicaflow/clinica/libs/db"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrDuplicateProviderEvent = errors.New("duplicate provider event")
)

const (
	ProviderStripe      = "stripe"
	ProviderMercadoPago = "mercadopago"
)

const (
	StatusPending  = "pending"
	StatusPaid     = "paid"
	StatusFailed   = "failed"
	StatusExpired  = "expired"
	StatusRefunded = "refunded"
)

type Payment struct {
	ID                string     `json:"id"`
	AppointmentID     string     `json:"appointment_id"`
	Provider          string     `json:"provider"`
	Status            string     `json:"status"`
	AmountCents       int64      `json:"amount_cents"`
	Currency          string     `json:"currency"`
	Description       string     `json:"description,omitempty"`
	PayerEmail        string     `json:"payer_email,omitempty"`
	ProviderRef       string     `json:"provider_ref,omitempty"`
	ProviderPaymentID string     `json:"provider_payment_id,omitempty"`
	CheckoutURL       string     `json:"checkout_url,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`
}

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

const paymentColumns = `id::text, appointment_id, provider, status, amount_cents, currency, description,
	payer_email, COALESCE(provider_ref, ''), COALESCE(provider_payment_id, ''), checkout_url,
	created_at, updated_at, paid_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID,
		&p.AppointmentID,
		&p.Provider,
		&p.Status,
		&p.AmountCents,
		&p.Currency,
		&p.Description,
		&p.PayerEmail,
		&p.ProviderRef,
		&p.ProviderPaymentID,
		&p.CheckoutURL,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.PaidAt,
	)
	return p, err
}

func notFound(err error, what string) error {
	if db.IsNotFound(err) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (r *Repository) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO payments (id, appointment_id, provider, status, amount_cents, currency, description, payer_email)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+paymentColumns,
		p.ID, p.AppointmentID, p.Provider, StatusPending, p.AmountCents, p.Currency, p.Description, p.PayerEmail)
	saved, err := scanPayment(row)
	if err != nil {
		return Payment{}, fmt.Errorf("insert payment: %w", err)
	}
	return saved, nil
}

// AttachCheckout stores the provider reference and URL returned when the
// checkout was created.
func (r *Repository) AttachCheckout(ctx context.Context, id, providerRef, url string) (Payment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE payments
		SET provider_ref = $2, checkout_url = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+paymentColumns,
		id, nullIfEmpty(providerRef), url)
	p, err := scanPayment(row)
	if err != nil {
		return Payment{}, notFound(err, "attach checkout")
	}
	return p, nil
}

func (r *Repository) GetPayment(ctx context.Context, id string) (Payment, error) {
	if !validID(id) {
		return Payment{}, ErrNotFound
	}
	p, err := scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if err != nil {
		return Payment{}, notFound(err, "get payment")
	}
	return p, nil
}

func (r *Repository) GetPaymentForUpdate(ctx context.Context, tx pgx.Tx, id string) (Payment, error) {
	if !validID(id) {
		return Payment{}, ErrNotFound
	}
	p, err := scanPayment(tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return Payment{}, notFound(err, "lock payment")
	}
	return p, nil
}

func (r *Repository) FindByProviderRefForUpdate(ctx context.Context, tx pgx.Tx, provider, ref string) (Payment, error) {
	p, err := scanPayment(tx.QueryRow(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE provider = $1 AND provider_ref = $2
		FOR UPDATE
	`, provider, ref))
	if err != nil {
		return Payment{}, notFound(err, "lock payment by provider ref")
	}
	return p, nil
}

func (r *Repository) ListByAppointment(ctx context.Context, appointmentID string) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE appointment_id = $1
		ORDER BY created_at DESC
	`, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Payment, error) {
		return scanPayment(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan payments: %w", err)
	}
	return out, nil
}

// ListPendingStripe returns Stripe payments still pending that were created
// before olderThan, oldest first.
func (r *Repository) ListPendingStripe(ctx context.Context, olderThan time.Time, limit int) ([]Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE provider = 'stripe' AND status = 'pending' AND provider_ref IS NOT NULL AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending stripe payments: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Payment, error) {
		return scanPayment(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan pending stripe payments: %w", err)
	}
	return out, nil
}

// MarkPaid settles a payment. It reports false when the payment was
// already paid or refunded.
func (r *Repository) MarkPaid(ctx context.Context, tx pgx.Tx, id, providerPaymentID string, paidAt time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE payments
		SET status = 'paid',
		    provider_payment_id = COALESCE($2, provider_payment_id),
		    paid_at = $3,
		    updated_at = now()
		WHERE id = $1 AND status NOT IN ('paid', 'refunded')
	`, id, nullIfEmpty(providerPaymentID), paidAt)
	if err != nil {
		return false, fmt.Errorf("mark payment paid: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkStatus moves an unsettled payment to failed, expired or refunded.
// Refunds apply to paid payments only; the others never overwrite paid.
func (r *Repository) MarkStatus(ctx context.Context, tx pgx.Tx, id, status string) (bool, error) {
	guard := `status = 'pending' OR status = 'failed'`
	if status == StatusRefunded {
		guard = `status = 'paid'`
	}
	tag, err := tx.Exec(ctx, `
		UPDATE payments
		SET status = $2, updated_at = now()
		WHERE id = $1 AND (`+guard+`)
	`, id, status)
	if err != nil {
		return false, fmt.Errorf("mark payment %s: %w", status, err)
	}
	return tag.RowsAffected() == 1, nil
}

type ProviderEvent struct {
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         []byte
}

// InsertProviderEvent records a webhook delivery once. Replays return
// ErrDuplicateProviderEvent.
func (r *Repository) InsertProviderEvent(ctx context.Context, tx pgx.Tx, evt ProviderEvent) error {
	payload := json.RawMessage(evt.Payload)
	if !json.Valid(payload) {
		payload = json.RawMessage(`{}`)
	}
	tag, err := tx.Exec(ctx, `
		INSERT INTO provider_events (provider, provider_event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, provider_event_id) DO NOTHING
	`, evt.Provider, evt.ProviderEventID, evt.EventType, payload)
	if err != nil {
		return fmt.Errorf("insert provider event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateProviderEvent
	}
	return nil
}

// validID keeps malformed ids from reaching a uuid column.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
