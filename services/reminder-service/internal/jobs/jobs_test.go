package jobs

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseRequest(t *testing.T) {
	raw := []byte(`{
		"appointment_id": "appt-1",
		"professional_id": "pro-1",
		"patient_id": "pat-1",
		"patient_name": "Ana",
		"channel": "email",
		"recipient": "ana@example.com",
		"starts_at": "2026-03-10T17:00:00Z",
		"remind_at": "2026-03-09T17:00:00Z",
		"offset_minutes": 1440,
		"modality": "online",
		"timezone": "America/Sao_Paulo"
	}`)
	job, err := ParseRequest(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.AppointmentID != "appt-1" || job.OffsetMinutes != 1440 || job.Channel != "email" {
		t.Fatalf("unexpected job %+v", job)
	}
	if !job.NextRunAt.Equal(job.RemindAt) {
		t.Fatalf("expected next run at remind time, got %v", job.NextRunAt)
	}
}

func TestParseRequestRejects(t *testing.T) {
	cases := map[string]string{
		"not json":        `{`,
		"no appointment":  `{"channel":"sms","recipient":"+55","starts_at":"2026-03-10T17:00:00Z","remind_at":"2026-03-09T17:00:00Z"}`,
		"no recipient":    `{"appointment_id":"a","channel":"sms","starts_at":"2026-03-10T17:00:00Z","remind_at":"2026-03-09T17:00:00Z"}`,
		"no times":        `{"appointment_id":"a","channel":"sms","recipient":"+55"}`,
		"remind too late": `{"appointment_id":"a","channel":"sms","recipient":"+55","starts_at":"2026-03-10T17:00:00Z","remind_at":"2026-03-10T17:00:00Z"}`,
	}
	for name, raw := range cases {
		if _, err := ParseRequest([]byte(raw)); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("%s: expected ErrInvalidRequest, got %v", name, err)
		}
	}
}

func TestBackoffDoublesUntilCap(t *testing.T) {
	base, ceiling := time.Minute, 10*time.Minute
	want := []time.Duration{time.Minute, 2 * time.Minute, 4 * time.Minute, 8 * time.Minute, 10 * time.Minute, 10 * time.Minute}
	for i, w := range want {
		if got := Backoff(base, ceiling, i+1); got != w {
			t.Fatalf("attempt %d: expected %v, got %v", i+1, w, got)
		}
	}
}

func TestPartitionExpiresStartedSessions(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	jobs := []Job{
		{ID: 1, StartsAt: now.Add(time.Hour)},
		{ID: 2, StartsAt: now},
		{ID: 3, StartsAt: now.Add(-time.Minute)},
	}
	due, expired := partition(jobs, now)
	if len(due) != 1 || due[0].ID != 1 {
		t.Fatalf("unexpected due %+v", due)
	}
	if got := ids(expired); len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("unexpected expired %v", got)
	}
}

func TestDuePayloadShape(t *testing.T) {
	job := Job{
		ID:            7,
		AppointmentID: "appt-1",
		Channel:       "whatsapp",
		Recipient:     "+5511999999999",
		StartsAt:      time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC),
		RemindAt:      time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC),
		OffsetMinutes: 60,
	}
	raw, err := json.Marshal(dlqPayload{DuePayload: job.Due(), Attempts: 5, ErrorReason: "boom"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["job_id"].(float64) != 7 || got["channel"] != "whatsapp" || got["error_reason"] != "boom" {
		t.Fatalf("unexpected payload %s", raw)
	}
	if _, ok := got["patient_name"]; ok {
		t.Fatalf("expected empty patient_name to be omitted: %s", raw)
	}
}
