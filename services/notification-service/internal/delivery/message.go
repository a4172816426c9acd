package delivery

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	ChannelEmail    = "email"
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"
)

// Reminder is the reminder.due.v1 body.
type Reminder struct {
	JobID          int64     `json:"job_id"`
	AppointmentID  string    `json:"appointment_id"`
	ProfessionalID string    `json:"professional_id"`
	PatientID      string    `json:"patient_id"`
	PatientName    string    `json:"patient_name"`
	Channel        string    `json:"channel"`
	Recipient      string    `json:"recipient"`
	StartsAt       time.Time `json:"starts_at"`
	RemindAt       time.Time `json:"remind_at"`
	OffsetMinutes  int       `json:"offset_minutes"`
	Modality       string    `json:"modality"`
	Timezone       string    `json:"timezone"`
}

var ErrInvalidReminder = errors.New("invalid reminder")

func ParseReminder(raw []byte) (Reminder, error) {
	var r Reminder
	if err := json.Unmarshal(raw, &r); err != nil {
		return Reminder{}, fmt.Errorf("%w: %v", ErrInvalidReminder, err)
	}
	r.Channel = strings.ToLower(strings.TrimSpace(r.Channel))
	if r.AppointmentID == "" || r.Channel == "" || strings.TrimSpace(r.Recipient) == "" || r.StartsAt.IsZero() {
		return Reminder{}, fmt.Errorf("%w: appointment_id, channel, recipient and starts_at are required", ErrInvalidReminder)
	}
	return r, nil
}

// Message is the rendered text for one reminder.
type Message struct {
	Subject string
	Body    string
}

// Render formats the session time in the reminder's timezone, falling back
// to loc when the timezone is missing or unknown.
func Render(r Reminder, loc *time.Location) Message {
	if r.Timezone != "" {
		if tz, err := time.LoadLocation(r.Timezone); err == nil {
			loc = tz
		}
	}
	if loc == nil {
		loc = time.UTC
	}
	local := r.StartsAt.In(loc)

	greeting := "Olá"
	if name := strings.TrimSpace(r.PatientName); name != "" {
		greeting = "Olá, " + name
	}
	kind := "sessão"
	switch r.Modality {
	case "online":
		kind = "sessão online"
	case "presencial":
		kind = "sessão presencial"
	}
	body := fmt.Sprintf("%s! Lembrete: sua %s está marcada para %s às %s.",
		greeting, kind, local.Format("02/01/2006"), local.Format("15:04"))
	if r.Modality == "online" {
		body += " O link de acesso será enviado pelo profissional."
	}
	return Message{
		Subject: "Lembrete da sua sessão em " + local.Format("02/01"),
		Body:    body,
	}
}
