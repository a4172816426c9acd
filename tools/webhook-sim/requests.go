package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/clinicaflow/clinica/libs/signature"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79/webhook"
)

type mercadoPagoOptions struct {
	BaseURL   string
	Secret    string
	DataID    string
	RequestID string
	Type      string
	Action    string
	Tamper    bool
	Now       time.Time
}

// mercadoPagoRequest builds a notification signed the way Mercado Pago signs
// it. Tamper flips the signature so the receiver must reject it.
func mercadoPagoRequest(o mercadoPagoOptions) (*http.Request, error) {
	if strings.TrimSpace(o.Secret) == "" {
		return nil, fmt.Errorf("mercadopago secret is required")
	}
	if o.DataID == "" {
		return nil, fmt.Errorf("data id is required")
	}
	if o.RequestID == "" {
		o.RequestID = uuid.NewString()
	}
	if o.Type == "" {
		o.Type = "payment"
	}
	if o.Action == "" {
		o.Action = "payment.updated"
	}
	body, err := json.Marshal(map[string]any{
		"id":           o.Now.UnixNano(),
		"live_mode":    false,
		"type":         o.Type,
		"action":       o.Action,
		"date_created": o.Now.UTC().Format(time.RFC3339),
		"api_version":  "v1",
		"data":         map[string]any{"id": o.DataID},
	})
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set(signature.QueryDataID, o.DataID)
	q.Set("type", o.Type)
	target := strings.TrimRight(o.BaseURL, "/") + "/api/payments/webhooks/mercadopago?" + q.Encode()
	req, err := http.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	sig := signature.SignatureHeader(o.Secret, o.DataID, o.RequestID, o.Now)
	if o.Tamper {
		sig = tamper(sig)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.HeaderSignature, sig)
	req.Header.Set(signature.HeaderRequestID, o.RequestID)
	return req, nil
}

func tamper(sig string) string {
	if sig == "" {
		return sig
	}
	last := sig[len(sig)-1]
	repl := byte('0')
	if last == '0' {
		repl = '1'
	}
	return sig[:len(sig)-1] + string(repl)
}

type stripeOptions struct {
	BaseURL   string
	Secret    string
	Type      string
	SessionID string
	PaymentID string
	Now       time.Time
}

func stripeRequest(o stripeOptions) (*http.Request, error) {
	if strings.TrimSpace(o.Secret) == "" {
		return nil, fmt.Errorf("stripe webhook secret is required")
	}
	if o.SessionID == "" && o.PaymentID == "" {
		return nil, fmt.Errorf("session id or payment id is required")
	}
	payload, err := stripeEventJSON(o)
	if err != nil {
		return nil, err
	}
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    o.Secret,
		Timestamp: o.Now,
		Scheme:    "v1",
	})
	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(o.BaseURL, "/")+"/api/payments/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)
	return req, nil
}

func stripeEventJSON(o stripeOptions) ([]byte, error) {
	session := map[string]any{
		"id":                  o.SessionID,
		"object":              "checkout.session",
		"client_reference_id": o.PaymentID,
		"metadata":            map[string]any{"payment_id": o.PaymentID},
		"mode":                "payment",
	}
	switch o.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		session["status"] = "complete"
		session["payment_status"] = "paid"
		session["payment_intent"] = "pi_test_" + strconv.FormatInt(o.Now.Unix(), 10)
	case "checkout.session.async_payment_failed":
		session["status"] = "complete"
		session["payment_status"] = "unpaid"
	case "checkout.session.expired":
		session["status"] = "expired"
		session["payment_status"] = "unpaid"
	default:
		return nil, fmt.Errorf("unsupported event type: %s", o.Type)
	}
	return json.Marshal(map[string]any{
		"id":          fmt.Sprintf("evt_test_%d", o.Now.UnixNano()),
		"object":      "event",
		"created":     o.Now.Unix(),
		"type":        o.Type,
		"api_version": "2024-06-20",
		"data":        map[string]any{"object": session},
	})
}
