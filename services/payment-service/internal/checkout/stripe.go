package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/clinicaflow/clinica/services/payment-service/internal/storage"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

type StripeConfig struct {
	SecretKey  string
	SuccessURL string
	CancelURL  string
}

// Stripe creates one-off payment Checkout Sessions. The payment id travels
// as client_reference_id and metadata so webhooks can find it.
type Stripe struct {
	api *client.API
	cfg StripeConfig
}

func NewStripe(cfg StripeConfig) *Stripe {
	sc := &client.API{}
	sc.Init(strings.TrimSpace(cfg.SecretKey), nil)
	return &Stripe{api: sc, cfg: cfg}
}

func (s *Stripe) Create(ctx context.Context, p storage.Payment) (Session, error) {
	name := p.Description
	if name == "" {
		name = "Consulta"
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.cfg.SuccessURL),
		CancelURL:         stripe.String(s.cfg.CancelURL),
		ClientReferenceID: stripe.String(p.ID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(p.Currency)),
					UnitAmount: stripe.Int64(p.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(name),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			"payment_id":     p.ID,
			"appointment_id": p.AppointmentID,
		},
	}
	if p.PayerEmail != "" {
		params.CustomerEmail = stripe.String(p.PayerEmail)
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String("checkout-" + p.ID)

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("stripe checkout session: %w", err)
	}
	return Session{ProviderRef: sess.ID, URL: sess.URL}, nil
}

// SessionStatus fetches a session for reconciliation.
func (s *Stripe) SessionStatus(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := s.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe get checkout session: %w", err)
	}
	return sess, nil
}
