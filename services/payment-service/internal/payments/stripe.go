package payments

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/clinicaflow/clinica/services/payment-service/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"
)

// HandleStripeEvent applies a verified Stripe event once.
func (s *Service) HandleStripeEvent(ctx context.Context, evt stripe.Event, body []byte) (Outcome, error) {
	evtType := string(evt.Type)
	log := s.logger.With(
		zap.String("provider", storage.ProviderStripe),
		zap.String("provider_event_id", evt.ID),
		zap.String("event_type", evtType),
		zap.Time("occurred_at", time.Unix(evt.Created, 0).UTC()),
	)
	log.Info("provider event received")

	tx, err := s.recordProviderEvent(ctx, storage.ProviderEvent{
		Provider:        storage.ProviderStripe,
		ProviderEventID: evt.ID,
		EventType:       evtType,
		Payload:         body,
	})
	if err != nil {
		return "", err
	}
	if tx == nil {
		return OutcomeDuplicate, nil
	}
	defer func() { _ = tx.Rollback(ctx) }()

	outcome := OutcomeIgnored
	switch evt.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
		stripe.EventTypeCheckoutSessionAsyncPaymentFailed,
		stripe.EventTypeCheckoutSessionExpired:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &sess); err != nil {
			log.Error("invalid checkout session payload", zap.Error(err))
			break
		}
		target := stripeTargetStatus(&sess)
		if evt.Type == stripe.EventTypeCheckoutSessionAsyncPaymentFailed {
			target = storage.StatusFailed
		}
		outcome, err = s.applyStripeSession(ctx, tx, &sess, target, log)
		if err != nil {
			return "", err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return outcome, nil
}

// SettleStripeSession applies a session fetched by the reconciler.
func (s *Service) SettleStripeSession(ctx context.Context, sess *stripe.CheckoutSession) (Outcome, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	outcome, err := s.applyStripeSession(ctx, tx, sess, stripeTargetStatus(sess), s.logger.With(zap.String("source", "reconciler")))
	if err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return outcome, nil
}

func (s *Service) applyStripeSession(ctx context.Context, tx pgx.Tx, sess *stripe.CheckoutSession, target string, log *zap.Logger) (Outcome, error) {
	if target == "" {
		return OutcomeIgnored, nil
	}
	log = log.With(zap.String("stripe_session_id", sess.ID))
	p, err := s.repo.FindByProviderRefForUpdate(ctx, tx, storage.ProviderStripe, sess.ID)
	if errors.Is(err, storage.ErrNotFound) && sess.ClientReferenceID != "" {
		p, err = s.repo.GetPaymentForUpdate(ctx, tx, sess.ClientReferenceID)
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Warn("checkout session for unknown payment")
			return OutcomeIgnored, nil
		}
		return "", err
	}

	switch target {
	case storage.StatusPaid:
		intentID := ""
		if sess.PaymentIntent != nil {
			intentID = sess.PaymentIntent.ID
		}
		if err := s.settle(ctx, tx, p, intentID); err != nil {
			return "", err
		}
	case storage.StatusExpired, storage.StatusFailed:
		changed, err := s.repo.MarkStatus(ctx, tx, p.ID, target)
		if err != nil {
			return "", err
		}
		log.Info("checkout not paid", zap.String("payment_id", p.ID), zap.String("status", target), zap.Bool("changed", changed))
	default:
		return OutcomeIgnored, nil
	}
	return OutcomeProcessed, nil
}

func stripeTargetStatus(sess *stripe.CheckoutSession) string {
	switch {
	case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return storage.StatusPaid
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		return storage.StatusExpired
	}
	return ""
}
