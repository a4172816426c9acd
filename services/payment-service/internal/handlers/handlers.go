package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/clinicaflow/clinica/libs/httpx"
	"github.com/clinicaflow/clinica/libs/signature"
	"github.com/clinicaflow/clinica/services/payment-service/internal/payments"
	"github.com/clinicaflow/clinica/services/payment-service/internal/storage"
	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"
)

// Payments is the use-case surface behind the HTTP routes.
type Payments interface {
	CreateCheckout(ctx context.Context, req payments.CheckoutRequest) (storage.Payment, error)
	Get(ctx context.Context, id string) (storage.Payment, error)
	ListByAppointment(ctx context.Context, appointmentID string) ([]storage.Payment, error)
	HandleMercadoPago(ctx context.Context, n payments.MercadoPagoNotification) (payments.Outcome, error)
	HandleStripeEvent(ctx context.Context, evt stripe.Event, body []byte) (payments.Outcome, error)
}

type Config struct {
	MercadoPago            signature.Verifier
	StripeWebhookSecret    string
	StripeWebhookTolerance time.Duration
}

type Handler struct {
	payments Payments
	logger   *zap.Logger
	cfg      Config
}

func New(p Payments, logger *zap.Logger, cfg Config) *Handler {
	if cfg.StripeWebhookTolerance <= 0 {
		cfg.StripeWebhookTolerance = 300 * time.Second
	}
	cfg.StripeWebhookSecret = strings.TrimSpace(cfg.StripeWebhookSecret)
	return &Handler{payments: p, logger: logger.Named("handlers"), cfg: cfg}
}

// Register mounts the payment routes. Webhooks carry no session auth; the
// provider signature is the authentication.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/payments/checkout", h.CreateCheckout)
	mux.HandleFunc("GET /api/payments/checkout/stub/{id}", h.StubCheckout)
	mux.HandleFunc("GET /api/payments", h.List)
	mux.HandleFunc("GET /api/payments/{id}", h.Get)
	mux.HandleFunc("POST /api/payments/webhooks/mercadopago", h.MercadoPagoWebhook)
	mux.HandleFunc("POST /api/payments/webhooks/stripe", h.StripeWebhook)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, payments.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not found")
	case errors.Is(err, payments.ErrUnknownProvider), errors.Is(err, payments.ErrInvalidAmount):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, payments.ErrProvider):
		httpx.WriteError(w, http.StatusBadGateway, "payment provider unavailable")
	default:
		h.logger.Error(msg,
			zap.Error(err),
			zap.String("request_id", httpx.RequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
		)
		httpx.WriteError(w, http.StatusInternalServerError, msg)
	}
}
