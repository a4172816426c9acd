package handlers

import (
	"net/http"
	"net/mail"
	"strings"

	"github.com/clinicaflow/clinica/libs/httpx"
	"github.com/clinicaflow/clinica/services/payment-service/internal/payments"
	"github.com/clinicaflow/clinica/services/payment-service/internal/storage"
)

type checkoutRequest struct {
	AppointmentID string `json:"appointment_id"`
	Provider      string `json:"provider"`
	AmountCents   int64  `json:"amount_cents"`
	Description   string `json:"description"`
	PayerEmail    string `json:"payer_email"`
}

type checkoutResponse struct {
	PaymentID   string `json:"payment_id"`
	Provider    string `json:"provider"`
	Status      string `json:"status"`
	CheckoutURL string `json:"checkout_url"`
}

func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.Provider = strings.ToLower(strings.TrimSpace(req.Provider))
	req.PayerEmail = strings.TrimSpace(req.PayerEmail)
	if req.AppointmentID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "appointment_id is required")
		return
	}
	if req.Provider != storage.ProviderStripe && req.Provider != storage.ProviderMercadoPago {
		httpx.WriteError(w, http.StatusBadRequest, "provider must be stripe or mercadopago")
		return
	}
	if req.AmountCents <= 0 {
		httpx.WriteError(w, http.StatusBadRequest, "amount_cents must be positive")
		return
	}
	if req.PayerEmail != "" {
		if _, err := mail.ParseAddress(req.PayerEmail); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "payer_email is invalid")
			return
		}
	}

	p, err := h.payments.CreateCheckout(r.Context(), payments.CheckoutRequest{
		AppointmentID: req.AppointmentID,
		Provider:      req.Provider,
		AmountCents:   req.AmountCents,
		Description:   strings.TrimSpace(req.Description),
		PayerEmail:    req.PayerEmail,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "failed to create checkout")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, checkoutResponse{
		PaymentID:   p.ID,
		Provider:    p.Provider,
		Status:      p.Status,
		CheckoutURL: p.CheckoutURL,
	})
}

type paymentsResponse struct {
	Payments []storage.Payment `json:"payments"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	appointmentID := strings.TrimSpace(r.URL.Query().Get("appointment_id"))
	if appointmentID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "appointment_id is required")
		return
	}
	list, err := h.payments.ListByAppointment(r.Context(), appointmentID)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to list payments")
		return
	}
	if list == nil {
		list = []storage.Payment{}
	}
	httpx.WriteJSON(w, http.StatusOK, paymentsResponse{Payments: list})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.Get(r.Context(), strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		h.writeServiceError(w, r, err, "failed to load payment")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

// StubCheckout is where development checkouts land when no provider
// credentials are configured.
func (h *Handler) StubCheckout(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.Get(r.Context(), strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		h.writeServiceError(w, r, err, "failed to load payment")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"stub":    true,
		"payment": p,
		"hint":    "use the webhook simulator to confirm this payment",
	})
}
