// Package payments owns checkout creation and payment settlement from
// provider webhooks.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clinicaflow/clinica/libs/outbox"
	"github.com/clinicaflow/clinica/services/payment-service/internal/checkout"
	"github.com/clinicaflow/clinica/services/payment-service/internal/mercadopago"
	"github.com/clinicaflow/clinica/services/payment-service/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const TopicPaymentConfirmed = "payment.confirmed.v1"

var (
	ErrNotFound        = storage.ErrNotFound
	ErrUnknownProvider = errors.New("unknown payment provider")
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrProvider        = errors.New("payment provider error")
)

// Outcome summarises what a webhook did.
type Outcome string

const (
	OutcomeProcessed Outcome = "ok"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

// ConfirmedPayload is the body of payment.confirmed.v1.
type ConfirmedPayload struct {
	PaymentID     string    `json:"payment_id"`
	AppointmentID string    `json:"appointment_id"`
	Provider      string    `json:"provider"`
	AmountCents   int64     `json:"amount_cents"`
	Currency      string    `json:"currency"`
	PaidAt        time.Time `json:"paid_at"`
}

// PaymentLookup reads a payment from Mercado Pago.
type PaymentLookup interface {
	Enabled() bool
	GetPayment(ctx context.Context, id string) (mercadopago.Payment, error)
}

type Config struct {
	Currency string
}

type Service struct {
	repo      *storage.Repository
	outbox    *outbox.Repository
	providers map[string]checkout.Provider
	mp        PaymentLookup
	logger    *zap.Logger
	cfg       Config
	now       func() time.Time
}

func NewService(repo *storage.Repository, outboxRepo *outbox.Repository, providers map[string]checkout.Provider, mp PaymentLookup, logger *zap.Logger, cfg Config) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "BRL"
	}
	return &Service{
		repo:      repo,
		outbox:    outboxRepo,
		providers: providers,
		mp:        mp,
		logger:    logger.Named("payments"),
		cfg:       cfg,
		now:       time.Now,
	}
}

type CheckoutRequest struct {
	AppointmentID string
	Provider      string
	AmountCents   int64
	Description   string
	PayerEmail    string
}

// CreateCheckout stores a pending payment, then opens the provider
// checkout. A provider failure leaves the payment pending without a URL.
func (s *Service) CreateCheckout(ctx context.Context, req CheckoutRequest) (storage.Payment, error) {
	provider, ok := s.providers[req.Provider]
	if !ok {
		return storage.Payment{}, fmt.Errorf("%w: %q", ErrUnknownProvider, req.Provider)
	}
	if req.AmountCents <= 0 {
		return storage.Payment{}, ErrInvalidAmount
	}

	p, err := s.repo.InsertPayment(ctx, storage.Payment{
		ID:            uuid.NewString(),
		AppointmentID: req.AppointmentID,
		Provider:      req.Provider,
		AmountCents:   req.AmountCents,
		Currency:      s.cfg.Currency,
		Description:   req.Description,
		PayerEmail:    req.PayerEmail,
	})
	if err != nil {
		return storage.Payment{}, err
	}

	sess, err := provider.Create(ctx, p)
	if err != nil {
		s.logger.Error("checkout creation failed",
			zap.Error(err),
			zap.String("payment_id", p.ID),
			zap.String("provider", p.Provider),
		)
		return storage.Payment{}, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	p, err = s.repo.AttachCheckout(ctx, p.ID, sess.ProviderRef, sess.URL)
	if err != nil {
		return storage.Payment{}, err
	}
	s.logger.Info("checkout created",
		zap.String("payment_id", p.ID),
		zap.String("appointment_id", p.AppointmentID),
		zap.String("provider", p.Provider),
		zap.String("provider_ref", p.ProviderRef),
	)
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (storage.Payment, error) {
	return s.repo.GetPayment(ctx, id)
}

func (s *Service) ListByAppointment(ctx context.Context, appointmentID string) ([]storage.Payment, error) {
	return s.repo.ListByAppointment(ctx, appointmentID)
}

// settle marks p paid and queues payment.confirmed.v1 in tx. Already
// settled payments are left alone.
func (s *Service) settle(ctx context.Context, tx pgx.Tx, p storage.Payment, providerPaymentID string) error {
	paidAt := s.now().UTC()
	changed, err := s.repo.MarkPaid(ctx, tx, p.ID, providerPaymentID, paidAt)
	if err != nil {
		return err
	}
	if !changed {
		s.logger.Info("payment already settled", zap.String("payment_id", p.ID), zap.String("status", p.Status))
		return nil
	}
	evt, err := outbox.NewEvent("payment", p.ID, TopicPaymentConfirmed, ConfirmedPayload{
		PaymentID:     p.ID,
		AppointmentID: p.AppointmentID,
		Provider:      p.Provider,
		AmountCents:   p.AmountCents,
		Currency:      p.Currency,
		PaidAt:        paidAt,
	})
	if err != nil {
		return err
	}
	if err := s.outbox.Insert(ctx, tx, evt); err != nil {
		return err
	}
	s.logger.Info("payment confirmed",
		zap.String("payment_id", p.ID),
		zap.String("appointment_id", p.AppointmentID),
		zap.String("provider", p.Provider),
	)
	return nil
}

// recordProviderEvent opens a transaction and records the delivery. It
// returns a nil tx for duplicates, after committing.
func (s *Service) recordProviderEvent(ctx context.Context, evt storage.ProviderEvent) (pgx.Tx, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.repo.InsertProviderEvent(ctx, tx, evt); err != nil {
		if errors.Is(err, storage.ErrDuplicateProviderEvent) {
			s.logger.Info("provider event duplicate ignored",
				zap.String("provider", evt.Provider),
				zap.String("provider_event_id", evt.ProviderEventID),
				zap.String("event_type", evt.EventType),
			)
			_ = tx.Rollback(ctx)
			return nil, nil
		}
		_ = tx.Rollback(ctx)
		return nil, err
	}
	return tx, nil
}

func trimLower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
