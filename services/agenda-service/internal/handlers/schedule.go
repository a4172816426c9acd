package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/clinicaflow/clinica/libs/httpx"
	"github.com/clinicaflow/clinica/services/agenda-service/internal/model"
)

type templateInput struct {
	DayOfWeek       *int            `json:"dia_semana"`
	Start           model.ClockTime `json:"hora_inicio"`
	End             model.ClockTime `json:"hora_fim"`
	IntervalMinutes int             `json:"intervalo_minutos"`
}

type replaceTemplatesRequest struct {
	Templates []templateInput `json:"horarios"`
}

type templatesResponse struct {
	Templates []model.WeeklyTemplate `json:"horarios"`
}

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	tpls, err := h.agenda.ListTemplates(r.Context(), pathValue(r, "professionalId"))
	if err != nil {
		h.writeServiceError(w, r, err, "failed to list templates")
		return
	}
	if tpls == nil {
		tpls = []model.WeeklyTemplate{}
	}
	httpx.WriteJSON(w, http.StatusOK, templatesResponse{Templates: tpls})
}

func (h *Handler) ReplaceTemplates(w http.ResponseWriter, r *http.Request) {
	professionalID := pathValue(r, "professionalId")
	var req replaceTemplatesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	tpls := make([]model.WeeklyTemplate, 0, len(req.Templates))
	for i, in := range req.Templates {
		if in.DayOfWeek == nil {
			httpx.WriteError(w, http.StatusBadRequest, "horarios["+strconv.Itoa(i)+"].dia_semana is required")
			return
		}
		tpl := model.WeeklyTemplate{
			ProfessionalID:  professionalID,
			DayOfWeek:       time.Weekday(*in.DayOfWeek),
			Start:           in.Start,
			End:             in.End,
			IntervalMinutes: in.IntervalMinutes,
		}
		if err := tpl.Validate(); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "horarios["+strconv.Itoa(i)+"]: "+err.Error())
			return
		}
		tpls = append(tpls, tpl)
	}

	saved, err := h.agenda.ReplaceTemplates(r.Context(), professionalID, tpls)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to save templates")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, templatesResponse{Templates: saved})
}

func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	day, err := strconv.Atoi(pathValue(r, "dayOfWeek"))
	if err != nil || day < 0 || day > 6 {
		httpx.WriteError(w, http.StatusBadRequest, "day of week must be 0-6")
		return
	}
	if err := h.agenda.DeleteTemplate(r.Context(), pathValue(r, "professionalId"), time.Weekday(day)); err != nil {
		h.writeServiceError(w, r, err, "failed to delete template")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type exceptionRequest struct {
	Date   string `json:"data"`
	Reason string `json:"motivo"`
}

type exceptionsResponse struct {
	Exceptions []model.Exception `json:"excecoes"`
}

func (h *Handler) ListExceptions(w http.ResponseWriter, r *http.Request) {
	list, err := h.agenda.ListExceptions(r.Context(), pathValue(r, "professionalId"))
	if err != nil {
		h.writeServiceError(w, r, err, "failed to list exceptions")
		return
	}
	if list == nil {
		list = []model.Exception{}
	}
	httpx.WriteJSON(w, http.StatusOK, exceptionsResponse{Exceptions: list})
}

func (h *Handler) AddException(w http.ResponseWriter, r *http.Request) {
	var req exceptionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	d, err := model.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "data must be YYYY-MM-DD")
		return
	}
	saved, err := h.agenda.AddException(r.Context(), model.Exception{
		ProfessionalID: pathValue(r, "professionalId"),
		Date:           d,
		Reason:         strings.TrimSpace(req.Reason),
	})
	if err != nil {
		h.writeServiceError(w, r, err, "failed to add exception")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, saved)
}

func (h *Handler) DeleteException(w http.ResponseWriter, r *http.Request) {
	d, err := model.ParseDate(pathValue(r, "date"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	if err := h.agenda.DeleteException(r.Context(), pathValue(r, "professionalId"), d); err != nil {
		h.writeServiceError(w, r, err, "failed to delete exception")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
