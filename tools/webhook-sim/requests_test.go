package main

import (
	"io"
	"testing"
	"time"

	"github.com/clinicaflow/clinica/libs/signature"
	"github.com/stripe/stripe-go/v79/webhook"
)

var simNow = time.Unix(1704908010, 0)

func TestMercadoPagoRequestVerifies(t *testing.T) {
	req, err := mercadoPagoRequest(mercadoPagoOptions{
		BaseURL: "http://localhost:8082/",
		Secret:  "your-secret",
		DataID:  "ABC123",
		Now:     simNow,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.URL.Path != "/api/payments/webhooks/mercadopago" || req.URL.Query().Get("data.id") != "ABC123" {
		t.Fatalf("unexpected url %s", req.URL)
	}
	v := signature.Verifier{Secret: "your-secret", Now: func() time.Time { return simNow }}
	n, err := v.VerifyRequest(req)
	if err != nil {
		t.Fatalf("expected signature to verify: %v", err)
	}
	if n.DataID != "abc123" || n.RequestID == "" {
		t.Fatalf("unexpected notification %+v", n)
	}
}

func TestMercadoPagoRequestTamper(t *testing.T) {
	req, err := mercadoPagoRequest(mercadoPagoOptions{Secret: "s", DataID: "1", Tamper: true, Now: simNow})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v := signature.Verifier{Secret: "s"}
	if _, err := v.VerifyRequest(req); err == nil {
		t.Fatalf("expected tampered signature to fail")
	}
}

func TestStripeRequestVerifies(t *testing.T) {
	req, err := stripeRequest(stripeOptions{
		BaseURL:   "http://localhost:8082",
		Secret:    "whsec_test",
		Type:      "checkout.session.completed",
		SessionID: "cs_test_1",
		PaymentID: "pay-1",
		Now:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, _ := io.ReadAll(req.Body)
	evt, err := webhook.ConstructEventWithOptions(body, req.Header.Get("Stripe-Signature"), "whsec_test", webhook.ConstructEventOptions{
		Tolerance:                5 * time.Minute,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		t.Fatalf("expected signature to verify: %v", err)
	}
	if string(evt.Type) != "checkout.session.completed" {
		t.Fatalf("unexpected event type %s", evt.Type)
	}
}

func TestStripeRequestValidation(t *testing.T) {
	if _, err := stripeRequest(stripeOptions{Secret: "whsec", Type: "checkout.session.completed", Now: simNow}); err == nil {
		t.Fatalf("expected error without ids")
	}
	if _, err := stripeRequest(stripeOptions{Secret: "whsec", Type: "invoice.paid", PaymentID: "p", Now: simNow}); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
}
