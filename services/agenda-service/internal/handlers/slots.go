package handlers

import (
	"net/http"
	"strings"

	"github.com/clinicaflow/clinica/libs/httpx"
	"github.com/clinicaflow/clinica/services/agenda-service/internal/model"
)

type slotsResponse struct {
	Slots []model.Slot `json:"slots"`
}

// Slots serves GET /api/agenda-slots/{professionalId}?data=YYYY-MM-DD.
func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	professionalID := pathValue(r, "professionalId")
	if professionalID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "professional id is required")
		return
	}

	var target *model.Date
	if raw := strings.TrimSpace(r.URL.Query().Get("data")); raw != "" {
		d, err := model.ParseDate(raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "data must be YYYY-MM-DD")
			return
		}
		target = &d
	}

	slots, err := h.agenda.Slots(r.Context(), professionalID, target)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to load agenda")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, slotsResponse{Slots: slots})
}
