package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/clinicaflow/clinica/libs/httpx"
	"github.com/clinicaflow/clinica/libs/signature"
	"github.com/clinicaflow/clinica/services/payment-service/internal/payments"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

type webhookResponse struct {
	Status payments.Outcome `json:"status"`
}

// MercadoPagoWebhook validates x-signature before anything else is read.
func (h *Handler) MercadoPagoWebhook(w http.ResponseWriter, r *http.Request) {
	n, err := h.cfg.MercadoPago.VerifyRequest(r)
	if err != nil {
		h.logger.Warn("mercadopago signature rejected",
			zap.Error(err),
			zap.String("request_id", r.Header.Get(signature.HeaderRequestID)),
		)
		switch {
		case errors.Is(err, signature.ErrNotConfigured):
			httpx.WriteError(w, http.StatusServiceUnavailable, "mercadopago webhook not configured")
		case errors.Is(err, signature.ErrMissingSignature), errors.Is(err, signature.ErrMalformedSignature):
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
		default:
			httpx.WriteError(w, http.StatusUnauthorized, "invalid signature")
		}
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	q := r.URL.Query()
	topic := q.Get("type")
	if topic == "" {
		topic = q.Get("topic")
	}

	outcome, err := h.payments.HandleMercadoPago(r.Context(), payments.MercadoPagoNotification{
		DataID:    n.DataID,
		RequestID: n.RequestID,
		Type:      topic,
		Body:      body,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "failed to process notification")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, webhookResponse{Status: outcome})
}

func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.cfg.StripeWebhookSecret == "" {
		httpx.WriteError(w, http.StatusServiceUnavailable, "stripe webhook not configured")
		return
	}
	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing Stripe-Signature header")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	evt, err := webhook.ConstructEventWithOptions(body, sigHeader, h.cfg.StripeWebhookSecret, webhook.ConstructEventOptions{
		Tolerance:                h.cfg.StripeWebhookTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		h.logger.Warn("stripe signature rejected", zap.Error(err))
		httpx.WriteError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	outcome, err := h.payments.HandleStripeEvent(r.Context(), evt, body)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to process event")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, webhookResponse{Status: outcome})
}
