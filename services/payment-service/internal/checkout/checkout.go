// Package checkout creates hosted checkout pages at the payment providers.
package checkout

import (
	"context"
	"strings"

	"github.com/clinicaflow/clinica/services/payment-service/internal/storage"
)

// Session is a created provider checkout.
type Session struct {
	ProviderRef string
	URL         string
}

type Provider interface {
	Create(ctx context.Context, p storage.Payment) (Session, error)
}

// Stub hands out local URLs when a provider has no credentials, so the
// rest of the flow can be exercised in development.
type Stub struct {
	BaseURL  string
	Provider string
}

func (s Stub) Create(_ context.Context, p storage.Payment) (Session, error) {
	base := strings.TrimRight(s.BaseURL, "/")
	if base == "" {
		base = "http://localhost:8082"
	}
	return Session{
		ProviderRef: "stub_" + s.Provider + "_" + p.ID,
		URL:         base + "/api/payments/checkout/stub/" + p.ID,
	}, nil
}
