package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/clinicaflow/clinica/libs/httpx"
	"github.com/clinicaflow/clinica/services/agenda-service/internal/agenda"
	"github.com/clinicaflow/clinica/services/agenda-service/internal/model"
	"github.com/clinicaflow/clinica/services/agenda-service/internal/storage"
	"go.uber.org/zap"
)

// Agenda is the use-case surface the HTTP layer drives.
type Agenda interface {
	Location() *time.Location
	Slots(ctx context.Context, professionalID string, target *model.Date) ([]model.Slot, error)

	ListTemplates(ctx context.Context, professionalID string) ([]model.WeeklyTemplate, error)
	ReplaceTemplates(ctx context.Context, professionalID string, templates []model.WeeklyTemplate) ([]model.WeeklyTemplate, error)
	DeleteTemplate(ctx context.Context, professionalID string, day time.Weekday) error
	ListExceptions(ctx context.Context, professionalID string) ([]model.Exception, error)
	AddException(ctx context.Context, e model.Exception) (model.Exception, error)
	DeleteException(ctx context.Context, professionalID string, date model.Date) error

	Create(ctx context.Context, appt model.Appointment, idempotencyKey string) (agenda.CreateResult, error)
	CreateRecurring(ctx context.Context, first model.Appointment, count int) (agenda.RecurringResult, error)
	Get(ctx context.Context, id string) (model.Appointment, error)
	List(ctx context.Context, f storage.AppointmentFilter) ([]model.Appointment, error)
	ChangeStatus(ctx context.Context, id string, to model.Status) (model.Appointment, error)
	Cancel(ctx context.Context, id string) (model.Appointment, error)
}

type Handler struct {
	agenda Agenda
	logger *zap.Logger
}

func New(a Agenda, logger *zap.Logger) *Handler {
	return &Handler{agenda: a, logger: logger.Named("handlers")}
}

// Register mounts every agenda route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/agenda-slots/{professionalId}", h.Slots)

	mux.HandleFunc("GET /api/professionals/{professionalId}/weekly-templates", h.ListTemplates)
	mux.HandleFunc("PUT /api/professionals/{professionalId}/weekly-templates", h.ReplaceTemplates)
	mux.HandleFunc("DELETE /api/professionals/{professionalId}/weekly-templates/{dayOfWeek}", h.DeleteTemplate)
	mux.HandleFunc("GET /api/professionals/{professionalId}/exceptions", h.ListExceptions)
	mux.HandleFunc("POST /api/professionals/{professionalId}/exceptions", h.AddException)
	mux.HandleFunc("DELETE /api/professionals/{professionalId}/exceptions/{date}", h.DeleteException)

	mux.HandleFunc("POST /api/appointments", h.CreateAppointment)
	mux.HandleFunc("POST /api/appointments/recurring", h.CreateRecurring)
	mux.HandleFunc("GET /api/appointments", h.ListAppointments)
	mux.HandleFunc("GET /api/appointments/{id}", h.GetAppointment)
	mux.HandleFunc("POST /api/appointments/{id}/cancel", h.CancelAppointment)
	mux.HandleFunc("POST /api/appointments/{id}/status", h.ChangeStatus)
}

func pathValue(r *http.Request, name string) string {
	return strings.TrimSpace(r.PathValue(name))
}

// writeServiceError maps domain errors to HTTP statuses. Anything unknown
// is logged and reported as a 500 without internals.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, agenda.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not found")
	case errors.Is(err, agenda.ErrSlotTaken):
		httpx.WriteError(w, http.StatusConflict, "time slot already booked")
	case errors.Is(err, agenda.ErrDuplicate):
		httpx.WriteError(w, http.StatusConflict, "already exists")
	case errors.Is(err, agenda.ErrKeyReused):
		httpx.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, agenda.ErrOutsideSchedule):
		httpx.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, agenda.ErrInvalidTransition), errors.Is(err, agenda.ErrInvalidTemplate):
		httpx.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error(msg,
			zap.Error(err),
			zap.String("request_id", httpx.RequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
		)
		httpx.WriteError(w, http.StatusInternalServerError, msg)
	}
}
