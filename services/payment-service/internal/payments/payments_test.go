package payments

import (
	"testing"

	"github.com/clinicaflow/clinica/services/payment-service/internal/storage"
	"github.com/stripe/stripe-go/v79"
)

func TestParseMercadoPagoEvent(t *testing.T) {
	evt := parseMercadoPagoEvent(MercadoPagoNotification{
		DataID:    "123",
		RequestID: "req-1",
		Body:      []byte(`{"id":12345,"type":"payment","action":"payment.updated","data":{"id":"123"}}`),
	})
	if evt.ID != "12345" || evt.Type != "payment" || evt.Action != "payment.updated" {
		t.Fatalf("unexpected event %+v", evt)
	}

	evt = parseMercadoPagoEvent(MercadoPagoNotification{DataID: "123", RequestID: "req-1", Type: "Payment"})
	if evt.ID != "req:req-1" || evt.Type != "payment" {
		t.Fatalf("expected request id fallback, got %+v", evt)
	}

	evt = parseMercadoPagoEvent(MercadoPagoNotification{DataID: "123", Body: []byte(`{"id":"abc","type":"merchant_order"}`)})
	if evt.ID != "abc" || evt.Type != "merchant_order" {
		t.Fatalf("unexpected event %+v", evt)
	}
}

func TestMercadoPagoStatusMapping(t *testing.T) {
	cases := map[string]string{
		"approved":     storage.StatusPaid,
		"rejected":     storage.StatusFailed,
		"cancelled":    storage.StatusFailed,
		"refunded":     storage.StatusRefunded,
		"charged_back": storage.StatusRefunded,
		"pending":      "",
		"in_process":   "",
	}
	for in, want := range cases {
		if got := mpTargetStatus(in); got != want {
			t.Fatalf("mpTargetStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStripeStatusMapping(t *testing.T) {
	paid := &stripe.CheckoutSession{Status: stripe.CheckoutSessionStatusComplete, PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid}
	if got := stripeTargetStatus(paid); got != storage.StatusPaid {
		t.Fatalf("expected paid, got %q", got)
	}
	expired := &stripe.CheckoutSession{Status: stripe.CheckoutSessionStatusExpired, PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid}
	if got := stripeTargetStatus(expired); got != storage.StatusExpired {
		t.Fatalf("expected expired, got %q", got)
	}
	open := &stripe.CheckoutSession{Status: stripe.CheckoutSessionStatusOpen, PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid}
	if got := stripeTargetStatus(open); got != "" {
		t.Fatalf("expected no change for open session, got %q", got)
	}
}
