package model

import (
	"errors"
	"fmt"
	"time"
)

// WeeklyTemplate is a recurring window of bookable time for one weekday.
type WeeklyTemplate struct {
	ID              string       `json:"id"`
	ProfessionalID  string       `json:"profissional_id"`
	DayOfWeek       time.Weekday `json:"dia_semana"`
	Start           ClockTime    `json:"hora_inicio"`
	End             ClockTime    `json:"hora_fim"`
	IntervalMinutes int          `json:"intervalo_minutos"`
	UpdatedAt       time.Time    `json:"atualizado_em"`
}

// Validate reports the first structural problem with the template.
func (t WeeklyTemplate) Validate() error {
	switch {
	case t.DayOfWeek < time.Sunday || t.DayOfWeek > time.Saturday:
		return fmt.Errorf("day of week %d out of range 0-6", t.DayOfWeek)
	case !t.Start.Valid() || !t.End.Valid():
		return errors.New("start and end must be within the day")
	case t.Start >= t.End:
		return fmt.Errorf("start %s must be before end %s", t.Start, t.End)
	case t.IntervalMinutes <= 0 || t.IntervalMinutes > minutesPerDay:
		return fmt.Errorf("interval must be between 1 and %d minutes, got %d", minutesPerDay, t.IntervalMinutes)
	}
	return nil
}

// Exception blocks a whole date for a professional.
type Exception struct {
	ID             string    `json:"id"`
	ProfessionalID string    `json:"profissional_id"`
	Date           Date      `json:"data"`
	Reason         string    `json:"motivo,omitempty"`
	CreatedAt      time.Time `json:"criado_em"`
}

// Slot is a generated, never persisted, bookable start time.
type Slot struct {
	ID        string `json:"id"`
	Date      string `json:"data"`
	Time      string `json:"hora"`
	Available bool   `json:"disponivel"`
}

func SlotID(professionalID, date, hhmm string) string {
	return professionalID + "-" + date + "-" + hhmm
}
