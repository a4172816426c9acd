package payments

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/clinicaflow/clinica/services/payment-service/internal/mercadopago"
	"github.com/clinicaflow/clinica/services/payment-service/internal/storage"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// MercadoPagoNotification is a webhook whose signature has been verified.
type MercadoPagoNotification struct {
	DataID    string
	RequestID string
	// Type comes from the query string; the body type wins when present.
	Type string
	Body []byte
}

type mpEvent struct {
	ID     string
	Type   string
	Action string
}

// parseMercadoPagoEvent reads the delivery id and type. Mercado Pago sends
// the id as a number; older topics send a string or nothing, in which case
// the request id identifies the delivery.
func parseMercadoPagoEvent(n MercadoPagoNotification) mpEvent {
	var body struct {
		ID     json.RawMessage `json:"id"`
		Type   string          `json:"type"`
		Action string          `json:"action"`
	}
	_ = json.Unmarshal(n.Body, &body)

	evt := mpEvent{
		ID:     strings.Trim(strings.TrimSpace(string(body.ID)), `"`),
		Type:   trimLower(body.Type),
		Action: trimLower(body.Action),
	}
	if evt.Type == "" {
		evt.Type = trimLower(n.Type)
	}
	if evt.ID == "" || evt.ID == "null" {
		evt.ID = "req:" + n.RequestID
		if n.RequestID == "" {
			evt.ID = "data:" + n.DataID + ":" + evt.Action
		}
	}
	return evt
}

// mpTargetStatus maps a Mercado Pago payment status to ours. Empty means
// nothing to do yet.
func mpTargetStatus(status string) string {
	switch status {
	case mercadopago.StatusApproved:
		return storage.StatusPaid
	case mercadopago.StatusRejected, mercadopago.StatusCancelled:
		return storage.StatusFailed
	case mercadopago.StatusRefunded, "charged_back":
		return storage.StatusRefunded
	}
	return ""
}

// HandleMercadoPago records the notification once and, for payment
// notifications, settles the payment from the status Mercado Pago reports.
// Errors mean the delivery should be retried.
func (s *Service) HandleMercadoPago(ctx context.Context, n MercadoPagoNotification) (Outcome, error) {
	evt := parseMercadoPagoEvent(n)
	log := s.logger.With(
		zap.String("provider", storage.ProviderMercadoPago),
		zap.String("provider_event_id", evt.ID),
		zap.String("event_type", evt.Type),
		zap.String("data_id", n.DataID),
	)
	log.Info("provider event received")

	tx, err := s.recordProviderEvent(ctx, storage.ProviderEvent{
		Provider:        storage.ProviderMercadoPago,
		ProviderEventID: evt.ID,
		EventType:       evt.Type,
		Payload:         n.Body,
	})
	if err != nil {
		return "", err
	}
	if tx == nil {
		return OutcomeDuplicate, nil
	}
	defer func() { _ = tx.Rollback(ctx) }()

	outcome := OutcomeIgnored
	switch {
	case evt.Type != "payment":
	case n.DataID == "":
		log.Warn("payment notification without data.id")
	case s.mp == nil || !s.mp.Enabled():
		log.Warn("mercadopago access token missing; payment status not fetched")
	default:
		mpPayment, err := s.mp.GetPayment(ctx, n.DataID)
		if err != nil {
			return "", err
		}
		outcome, err = s.applyMercadoPagoPayment(ctx, tx, mpPayment, log)
		if err != nil {
			return "", err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return outcome, nil
}

func (s *Service) applyMercadoPagoPayment(ctx context.Context, tx pgx.Tx, mp mercadopago.Payment, log *zap.Logger) (Outcome, error) {
	log = log.With(zap.String("payment_id", mp.ExternalReference), zap.String("mp_status", mp.Status))
	if mp.ExternalReference == "" {
		log.Warn("mercadopago payment without external_reference")
		return OutcomeIgnored, nil
	}
	p, err := s.repo.GetPaymentForUpdate(ctx, tx, mp.ExternalReference)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Warn("mercadopago payment for unknown payment")
			return OutcomeIgnored, nil
		}
		return "", err
	}

	switch target := mpTargetStatus(mp.Status); target {
	case storage.StatusPaid:
		if err := s.settle(ctx, tx, p, strconv.FormatInt(mp.ID, 10)); err != nil {
			return "", err
		}
	case storage.StatusFailed, storage.StatusRefunded:
		changed, err := s.repo.MarkStatus(ctx, tx, p.ID, target)
		if err != nil {
			return "", err
		}
		log.Info("payment status updated", zap.String("status", target), zap.Bool("changed", changed))
	default:
		log.Info("payment still in progress")
		return OutcomeIgnored, nil
	}
	return OutcomeProcessed, nil
}
