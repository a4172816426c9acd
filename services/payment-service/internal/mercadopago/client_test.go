package mercadopago

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreatePreference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/checkout/preferences" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer TEST-token" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req PreferenceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.ExternalReference != "pay-1" || len(req.Items) != 1 || req.Items[0].UnitPrice != 150 {
			t.Errorf("unexpected preference %+v", req)
		}
		_, _ = w.Write([]byte(`{"id":"pref-1","init_point":"https://mp.example/checkout/pref-1"}`))
	}))
	defer srv.Close()

	c := NewClient("TEST-token", WithBaseURL(srv.URL))
	pref, err := c.CreatePreference(context.Background(), PreferenceRequest{
		Items:             []PreferenceItem{{Title: "Consulta", Quantity: 1, UnitPrice: 150, CurrencyID: "BRL"}},
		ExternalReference: "pay-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pref.ID != "pref-1" || pref.InitPoint == "" {
		t.Fatalf("unexpected preference %+v", pref)
	}
}

func TestGetPaymentAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Payment not found"}`))
	}))
	defer srv.Close()

	_, err := NewClient("t", WithBaseURL(srv.URL)).GetPayment(context.Background(), "42")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound || apiErr.Message != "Payment not found" {
		t.Fatalf("expected APIError 404, got %v", err)
	}
}

func TestGetPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payments/42" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"id":42,"status":"approved","external_reference":"pay-1","transaction_amount":150.5}`))
	}))
	defer srv.Close()

	p, err := NewClient("t", WithBaseURL(srv.URL)).GetPayment(context.Background(), "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Status != StatusApproved || p.ExternalReference != "pay-1" || p.ID != 42 {
		t.Fatalf("unexpected payment %+v", p)
	}
}

func TestEnabled(t *testing.T) {
	if NewClient(" ").Enabled() {
		t.Fatalf("blank token should disable the client")
	}
	var c *Client
	if c.Enabled() {
		t.Fatalf("nil client should be disabled")
	}
}
