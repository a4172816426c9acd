package checkout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/clinicaflow/clinica/services/payment-service/internal/mercadopago"
	"github.com/clinicaflow/clinica/services/payment-service/internal/storage"
)

func TestStubSession(t *testing.T) {
	s, err := Stub{BaseURL: "http://pay.local/", Provider: storage.ProviderStripe}.Create(context.Background(), storage.Payment{ID: "p1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ProviderRef != "stub_stripe_p1" || s.URL != "http://pay.local/api/payments/checkout/stub/p1" {
		t.Fatalf("unexpected session %+v", s)
	}
}

func TestMercadoPagoPreference(t *testing.T) {
	var got mercadopago.PreferenceRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"id":"pref-9","init_point":"https://mp/live","sandbox_init_point":"https://mp/sandbox"}`))
	}))
	defer srv.Close()

	mp := NewMercadoPago(mercadopago.NewClient("tok", mercadopago.WithBaseURL(srv.URL)), MercadoPagoConfig{
		NotificationURL: "https://clinic/api/payments/webhooks/mercadopago",
		Sandbox:         true,
	})
	s, err := mp.Create(context.Background(), storage.Payment{ID: "p1", AmountCents: 15050, Currency: "BRL", PayerEmail: "a@b.c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ProviderRef != "pref-9" || s.URL != "https://mp/sandbox" {
		t.Fatalf("unexpected session %+v", s)
	}
	if got.ExternalReference != "p1" || got.Items[0].UnitPrice != 150.5 || got.Items[0].Title != "Consulta" {
		t.Fatalf("unexpected preference %+v", got)
	}
	if got.Payer == nil || got.Payer.Email != "a@b.c" || !strings.HasSuffix(got.NotificationURL, "/mercadopago") {
		t.Fatalf("unexpected preference payer/notification %+v", got)
	}
}
