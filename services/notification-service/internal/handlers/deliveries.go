package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/clinicaflow/clinica/libs/httpx"
	"github.com/clinicaflow/clinica/services/notification-service/internal/storage"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type History interface {
	ForAppointment(ctx context.Context, appointmentID string, limit int) ([]storage.Delivery, error)
}

type Handler struct {
	history History
	logger  *zap.Logger
}

func New(history History, logger *zap.Logger) *Handler {
	return &Handler{history: history, logger: logger.Named("handlers")}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/notifications/appointments/{appointmentId}", h.AppointmentHistory)
}

// AppointmentHistory lists reminder deliveries for one appointment,
// newest first. ?limit= is capped at 200.
func (h *Handler) AppointmentHistory(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("appointmentId"))
	if id == "" {
		httpx.WriteError(w, http.StatusBadRequest, "appointment id is required")
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	deliveries, err := h.history.ForAppointment(r.Context(), id, limit)
	if err != nil {
		h.logger.Error("list deliveries failed",
			zap.Error(err),
			zap.String("appointment_id", id),
			zap.String("request_id", httpx.RequestIDFromContext(r.Context())),
		)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list deliveries")
		return
	}
	if deliveries == nil {
		deliveries = []storage.Delivery{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"deliveries": deliveries})
}
