package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/clinicaflow/clinica/services/agenda-service/internal/model"
)

var appt = model.Appointment{
	ID:             "appt-1",
	ProfessionalID: "prof-1",
	PatientID:      "pat-1",
	PatientEmail:   "ana@example.com",
	PatientPhone:   "+5511999990000",
	StartsAt:       time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC),
	Modality:       model.ModalityOnline,
	Status:         model.StatusScheduled,
}

func TestRemindersSkipPastOffsets(t *testing.T) {
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	policy := ReminderPolicy{Offsets: []time.Duration{24 * time.Hour, 2 * time.Hour}, PhoneChannel: "whatsapp"}
	evts, err := Reminders(appt, policy, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 2 {
		t.Fatalf("expected the 2h reminder on two channels, got %d", len(evts))
	}
	var p ReminderPayload
	if err := json.Unmarshal(evts[0].Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.OffsetMinutes != 120 || !p.RemindAt.Equal(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected payload %+v", p)
	}
	if p.Channel != "email" || p.Recipient != "ana@example.com" || p.Timezone != "UTC" {
		t.Fatalf("unexpected route %+v", p)
	}
	if evts[0].EventType != ReminderRequested || evts[0].AggregateID != "appt-1" {
		t.Fatalf("unexpected event %+v", evts[0])
	}
}

func TestStatusChangedTopic(t *testing.T) {
	cancelled := appt
	cancelled.Status = model.StatusCancelled
	evt, err := StatusChanged(cancelled, model.StatusScheduled, time.Now())
	if err != nil || evt.EventType != AppointmentCancelled {
		t.Fatalf("expected cancellation topic, got %q err=%v", evt.EventType, err)
	}
	confirmed := appt
	confirmed.Status = model.StatusConfirmed
	evt, _ = StatusChanged(confirmed, model.StatusScheduled, time.Now())
	if evt.EventType != AppointmentStatusChanged {
		t.Fatalf("expected status change topic, got %q", evt.EventType)
	}
	var p AppointmentPayload
	_ = json.Unmarshal(evt.Payload, &p)
	if p.PreviousStatus != "scheduled" || p.Status != "confirmed" {
		t.Fatalf("unexpected payload %+v", p)
	}
}

func TestRemindersWithoutContactAreEmpty(t *testing.T) {
	bare := appt
	bare.PatientEmail, bare.PatientPhone = "", ""
	evts, err := Reminders(bare, ReminderPolicy{Offsets: []time.Duration{time.Hour}, PhoneChannel: "sms"}, time.Time{})
	if err != nil || len(evts) != 0 {
		t.Fatalf("expected no reminders without contact details, got %d err=%v", len(evts), err)
	}
}
