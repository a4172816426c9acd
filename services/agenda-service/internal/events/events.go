package events

import (
	"time"

	"github.com/clinicaflow/clinica/libs/outbox"
	"github.com/clinicaflow/clinica/services/agenda-service/internal/model"
)

const (
	AppointmentCreated       = "agenda.appointment.created.v1"
	AppointmentCancelled     = "agenda.appointment.cancelled.v1"
	AppointmentStatusChanged = "agenda.appointment.status_changed.v1"
	ReminderRequested        = "agenda.reminder.requested.v1"

	// PaymentConfirmed is consumed, not produced, by this service.
	PaymentConfirmed = "payment.confirmed.v1"

	aggregateAppointment = "appointment"
)

type AppointmentPayload struct {
	AppointmentID  string    `json:"appointment_id"`
	ProfessionalID string    `json:"professional_id"`
	PatientID      string    `json:"patient_id"`
	StartsAt       time.Time `json:"starts_at"`
	Modality       string    `json:"modality"`
	Status         string    `json:"status"`
	PriceCents     int64     `json:"price_cents"`
	SeriesID       string    `json:"series_id,omitempty"`
	Sequence       int       `json:"sequence"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

type ReminderPayload struct {
	AppointmentID  string    `json:"appointment_id"`
	ProfessionalID string    `json:"professional_id"`
	PatientID      string    `json:"patient_id"`
	PatientName    string    `json:"patient_name,omitempty"`
	Channel        string    `json:"channel"`
	Recipient      string    `json:"recipient"`
	StartsAt       time.Time `json:"starts_at"`
	RemindAt       time.Time `json:"remind_at"`
	OffsetMinutes  int       `json:"offset_minutes"`
	Modality       string    `json:"modality"`
	Timezone       string    `json:"timezone"`
}

// PaymentConfirmedPayload mirrors what the payment service emits.
type PaymentConfirmedPayload struct {
	PaymentID     string `json:"payment_id"`
	AppointmentID string `json:"appointment_id"`
	Provider      string `json:"provider"`
	AmountCents   int64  `json:"amount_cents"`
}

func appointmentPayload(appt model.Appointment, now time.Time) AppointmentPayload {
	return AppointmentPayload{
		AppointmentID:  appt.ID,
		ProfessionalID: appt.ProfessionalID,
		PatientID:      appt.PatientID,
		StartsAt:       appt.StartsAt.UTC(),
		Modality:       string(appt.Modality),
		Status:         string(appt.Status),
		PriceCents:     appt.PriceCents,
		SeriesID:       appt.SeriesID,
		Sequence:       appt.Sequence,
		OccurredAt:     now.UTC(),
	}
}

func Created(appt model.Appointment, now time.Time) (outbox.Event, error) {
	return outbox.NewEvent(aggregateAppointment, appt.ID, AppointmentCreated, appointmentPayload(appt, now))
}

// StatusChanged emits the cancellation topic for cancellations so the
// reminder service can subscribe to just that.
func StatusChanged(appt model.Appointment, previous model.Status, now time.Time) (outbox.Event, error) {
	p := appointmentPayload(appt, now)
	p.PreviousStatus = string(previous)
	topic := AppointmentStatusChanged
	if appt.Status == model.StatusCancelled {
		topic = AppointmentCancelled
	}
	return outbox.NewEvent(aggregateAppointment, appt.ID, topic, p)
}

// ReminderPolicy decides when and where reminders go.
type ReminderPolicy struct {
	Offsets []time.Duration
	// PhoneChannel is "sms" or "whatsapp".
	PhoneChannel string
	Location     *time.Location
}

// Reminders builds one reminder request per offset and contact channel,
// skipping reminders whose time has already passed.
func Reminders(appt model.Appointment, policy ReminderPolicy, now time.Time) ([]outbox.Event, error) {
	type route struct{ channel, recipient string }
	var routes []route
	if appt.PatientEmail != "" {
		routes = append(routes, route{"email", appt.PatientEmail})
	}
	if appt.PatientPhone != "" && policy.PhoneChannel != "" {
		routes = append(routes, route{policy.PhoneChannel, appt.PatientPhone})
	}
	loc := policy.Location
	if loc == nil {
		loc = time.UTC
	}

	var out []outbox.Event
	for _, off := range policy.Offsets {
		remindAt := appt.StartsAt.Add(-off)
		if !remindAt.After(now) {
			continue
		}
		for _, rt := range routes {
			evt, err := outbox.NewEvent(aggregateAppointment, appt.ID, ReminderRequested, ReminderPayload{
				AppointmentID:  appt.ID,
				ProfessionalID: appt.ProfessionalID,
				PatientID:      appt.PatientID,
				PatientName:    appt.PatientName,
				Channel:        rt.channel,
				Recipient:      rt.recipient,
				StartsAt:       appt.StartsAt.UTC(),
				RemindAt:       remindAt.UTC(),
				OffsetMinutes:  int(off / time.Minute),
				Modality:       string(appt.Modality),
				Timezone:       loc.String(),
			})
			if err != nil {
				return nil, err
			}
			out = append(out, evt)
		}
	}
	return out, nil
}
