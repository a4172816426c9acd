package checkout

import (
	"context"
	"fmt"

	"github.com/clinicaflow/clinica/services/payment-service/internal/mercadopago"
	"github.com/clinicaflow/clinica/services/payment-service/internal/storage"
)

type MercadoPagoConfig struct {
	NotificationURL string
	SuccessURL      string
	FailureURL      string
	// Sandbox selects sandbox_init_point over init_point.
	Sandbox bool
}

// MercadoPago creates checkout preferences. external_reference carries the
// payment id back in payment lookups.
type MercadoPago struct {
	client *mercadopago.Client
	cfg    MercadoPagoConfig
}

func NewMercadoPago(c *mercadopago.Client, cfg MercadoPagoConfig) *MercadoPago {
	return &MercadoPago{client: c, cfg: cfg}
}

func (m *MercadoPago) Create(ctx context.Context, p storage.Payment) (Session, error) {
	title := p.Description
	if title == "" {
		title = "Consulta"
	}
	req := mercadopago.PreferenceRequest{
		Items: []mercadopago.PreferenceItem{{
			Title:      title,
			Quantity:   1,
			UnitPrice:  float64(p.AmountCents) / 100,
			CurrencyID: p.Currency,
		}},
		ExternalReference: p.ID,
		NotificationURL:   m.cfg.NotificationURL,
	}
	if p.PayerEmail != "" {
		req.Payer = &mercadopago.Payer{Email: p.PayerEmail}
	}
	if m.cfg.SuccessURL != "" || m.cfg.FailureURL != "" {
		req.BackURLs = &mercadopago.BackURLs{
			Success: m.cfg.SuccessURL,
			Failure: m.cfg.FailureURL,
			Pending: m.cfg.SuccessURL,
		}
	}

	pref, err := m.client.CreatePreference(ctx, req)
	if err != nil {
		return Session{}, fmt.Errorf("mercadopago preference: %w", err)
	}
	url := pref.InitPoint
	if m.cfg.Sandbox && pref.SandboxInitPoint != "" {
		url = pref.SandboxInitPoint
	}
	return Session{ProviderRef: pref.ID, URL: url}, nil
}
