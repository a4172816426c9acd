package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/clinicaflow/clinica/libs/httpx"
	"github.com/clinicaflow/clinica/services/agenda-service/internal/model"
	"github.com/clinicaflow/clinica/services/agenda-service/internal/recurring"
	"github.com/clinicaflow/clinica/services/agenda-service/internal/storage"
)

type appointmentRequest struct {
	ProfessionalID string `json:"profissional_id"`
	PatientID      string `json:"paciente_id"`
	PatientName    string `json:"paciente_nome"`
	PatientEmail   string `json:"paciente_email"`
	PatientPhone   string `json:"paciente_telefone"`
	StartsAt       string `json:"data_hora"`
	Modality       string `json:"modalidade"`
	Notes          string `json:"observacoes"`
	PriceCents     int64  `json:"valor_centavos"`
	// Sessions is only read by the recurring endpoint.
	Sessions *int `json:"quantidade_sessoes,omitempty"`
}

// toAppointment validates the request. A data_hora without an offset is
// read as clinic-local wall time.
func (req appointmentRequest) toAppointment(loc *time.Location) (model.Appointment, string) {
	req.ProfessionalID = strings.TrimSpace(req.ProfessionalID)
	req.PatientID = strings.TrimSpace(req.PatientID)
	if req.ProfessionalID == "" || req.PatientID == "" {
		return model.Appointment{}, "profissional_id and paciente_id are required"
	}
	startsAt, err := parseInstant(strings.TrimSpace(req.StartsAt), loc)
	if err != nil {
		return model.Appointment{}, "data_hora must be RFC3339 or YYYY-MM-DDTHH:mm"
	}
	modality, err := model.ParseModality(strings.TrimSpace(req.Modality))
	if err != nil {
		return model.Appointment{}, err.Error()
	}
	if req.PriceCents < 0 {
		return model.Appointment{}, "valor_centavos must not be negative"
	}
	return model.Appointment{
		ProfessionalID: req.ProfessionalID,
		PatientID:      req.PatientID,
		PatientName:    strings.TrimSpace(req.PatientName),
		PatientEmail:   strings.TrimSpace(req.PatientEmail),
		PatientPhone:   strings.TrimSpace(req.PatientPhone),
		StartsAt:       startsAt,
		Modality:       modality,
		Notes:          strings.TrimSpace(req.Notes),
		PriceCents:     req.PriceCents,
	}, ""
}

func parseInstant(raw string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04", "2006-01-02T15:04:05", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &time.ParseError{Value: raw, Layout: time.RFC3339}
}

func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req appointmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Sessions != nil {
		httpx.WriteError(w, http.StatusBadRequest, "use /api/appointments/recurring for quantidade_sessoes")
		return
	}
	appt, msg := req.toAppointment(h.agenda.Location())
	if msg != "" {
		httpx.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	res, err := h.agenda.Create(r.Context(), appt, strings.TrimSpace(r.Header.Get("Idempotency-Key")))
	if err != nil {
		h.writeServiceError(w, r, err, "failed to create appointment")
		return
	}
	if res.Replayed {
		w.Header().Set("Idempotent-Replayed", "true")
	}
	httpx.WriteJSON(w, http.StatusCreated, res.Appointment)
}

type recurringResponse struct {
	SeriesID  string              `json:"serie_id"`
	Requested int                 `json:"solicitadas"`
	Created   int                 `json:"criadas"`
	Sessions  []recurring.Session `json:"sessoes"`
	Skipped   []recurring.Skipped `json:"ignoradas"`
}

// CreateRecurring books a weekly series. Partial success is a 201 listing
// the sessions that could not be booked.
func (h *Handler) CreateRecurring(w http.ResponseWriter, r *http.Request) {
	var req appointmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Sessions == nil || *req.Sessions < 1 || *req.Sessions > recurring.MaxSessions {
		httpx.WriteError(w, http.StatusBadRequest, "quantidade_sessoes must be between 1 and "+strconv.Itoa(recurring.MaxSessions))
		return
	}
	first, msg := req.toAppointment(h.agenda.Location())
	if msg != "" {
		httpx.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	res, err := h.agenda.CreateRecurring(r.Context(), first, *req.Sessions)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to create recurring appointments")
		return
	}
	skipped := res.Skipped
	if skipped == nil {
		skipped = []recurring.Skipped{}
	}
	httpx.WriteJSON(w, http.StatusCreated, recurringResponse{
		SeriesID:  res.SeriesID,
		Requested: res.Requested,
		Created:   len(res.Created),
		Sessions:  res.Created,
		Skipped:   skipped,
	})
}

type appointmentsResponse struct {
	Appointments []model.Appointment `json:"agendamentos"`
}

// ListAppointments filters by profissional_id, paciente_id and the
// de/ate (YYYY-MM-DD, inclusive) date range in clinic time.
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc := h.agenda.Location()
	f := storage.AppointmentFilter{
		ProfessionalID: strings.TrimSpace(q.Get("profissional_id")),
		PatientID:      strings.TrimSpace(q.Get("paciente_id")),
	}
	if f.ProfessionalID == "" && f.PatientID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "profissional_id or paciente_id is required")
		return
	}
	if raw := q.Get("de"); raw != "" {
		d, err := model.ParseDate(raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "de must be YYYY-MM-DD")
			return
		}
		f.From = d.In(loc)
	}
	if raw := q.Get("ate"); raw != "" {
		d, err := model.ParseDate(raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "ate must be YYYY-MM-DD")
			return
		}
		f.To = d.AddDays(1).In(loc)
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = n
	}

	list, err := h.agenda.List(r.Context(), f)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to list appointments")
		return
	}
	if list == nil {
		list = []model.Appointment{}
	}
	httpx.WriteJSON(w, http.StatusOK, appointmentsResponse{Appointments: list})
}

func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := h.agenda.Get(r.Context(), pathValue(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err, "failed to load appointment")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := h.agenda.Cancel(r.Context(), pathValue(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err, "failed to cancel appointment")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	status, err := model.ParseStatus(strings.TrimSpace(req.Status))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	appt, err := h.agenda.ChangeStatus(r.Context(), pathValue(r, "id"), status)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to update appointment")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}
