// Package jobs stores reminder requests and releases them as
// reminder.due.v1 events when their time comes.
package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	TopicReminderRequested   = "agenda.reminder.requested.v1"
	TopicAppointmentCanceled = "agenda.appointment.cancelled.v1"
	TopicReminderDue         = "reminder.due.v1"
	TopicReminderDLQ         = "reminder.dlq.v1"
)

const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

type Job struct {
	ID             int64
	AppointmentID  string
	ProfessionalID string
	PatientID      string
	PatientName    string
	Channel        string
	Recipient      string
	OffsetMinutes  int
	StartsAt       time.Time
	RemindAt       time.Time
	Modality       string
	Timezone       string
	Attempts       int
	MaxAttempts    int
	NextRunAt      time.Time
	Traceparent    string
	Tracestate     string
}

// requestPayload is the agenda.reminder.requested.v1 body.
type requestPayload struct {
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

var ErrInvalidRequest = errors.New("invalid reminder request")

// ParseRequest validates a reminder request into a pending job.
func ParseRequest(raw []byte) (Job, error) {
	var p requestPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Job{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	switch {
	case p.AppointmentID == "":
		return Job{}, fmt.Errorf("%w: appointment_id is required", ErrInvalidRequest)
	case p.Channel == "" || p.Recipient == "":
		return Job{}, fmt.Errorf("%w: channel and recipient are required", ErrInvalidRequest)
	case p.RemindAt.IsZero() || p.StartsAt.IsZero():
		return Job{}, fmt.Errorf("%w: remind_at and starts_at are required", ErrInvalidRequest)
	case !p.RemindAt.Before(p.StartsAt):
		return Job{}, fmt.Errorf("%w: remind_at must precede starts_at", ErrInvalidRequest)
	}
	return Job{
		AppointmentID:  p.AppointmentID,
		ProfessionalID: p.ProfessionalID,
		PatientID:      p.PatientID,
		PatientName:    p.PatientName,
		Channel:        p.Channel,
		Recipient:      p.Recipient,
		OffsetMinutes:  p.OffsetMinutes,
		StartsAt:       p.StartsAt.UTC(),
		RemindAt:       p.RemindAt.UTC(),
		Modality:       p.Modality,
		Timezone:       p.Timezone,
		NextRunAt:      p.RemindAt.UTC(),
	}, nil
}

// DuePayload is the reminder.due.v1 body the notification service reads.
type DuePayload struct {
	JobID          int64     `json:"job_id"`
	AppointmentID  string    `json:"appointment_id"`
	ProfessionalID string    `json:"professional_id"`
	PatientID      string    `json:"patient_id"`
	PatientName    string    `json:"patient_name,omitempty"`
	Channel        string    `json:"channel"`
	Recipient      string    `json:"recipient"`
	StartsAt       time.Time `json:"starts_at"`
	RemindAt       time.Time `json:"remind_at"`
	OffsetMinutes  int       `json:"offset_minutes"`
	Modality       string    `json:"modality,omitempty"`
	Timezone       string    `json:"timezone,omitempty"`
}

func (j Job) Due() DuePayload {
	return DuePayload{
		JobID:          j.ID,
		AppointmentID:  j.AppointmentID,
		ProfessionalID: j.ProfessionalID,
		PatientID:      j.PatientID,
		PatientName:    j.PatientName,
		Channel:        j.Channel,
		Recipient:      j.Recipient,
		StartsAt:       j.StartsAt,
		RemindAt:       j.RemindAt,
		OffsetMinutes:  j.OffsetMinutes,
		Modality:       j.Modality,
		Timezone:       j.Timezone,
	}
}

type dlqPayload struct {
	DuePayload
	Attempts    int       `json:"attempts"`
	ErrorReason string    `json:"error_reason"`
	FailedAt    time.Time `json:"failed_at"`
}

// Backoff doubles base per attempt, capped at ceiling.
func Backoff(base, ceiling time.Duration, attempts int) time.Duration {
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	return min(d, ceiling)
}

// cancelPayload is the part of agenda.appointment.cancelled.v1 used here.
type cancelPayload struct {
	AppointmentID string `json:"appointment_id"`
}
