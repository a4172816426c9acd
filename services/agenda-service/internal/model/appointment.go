package model

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no_show"
	StatusCancelled Status = "cancelled"
)

var statusTransitions = map[Status][]Status{
	StatusScheduled: {StatusConfirmed, StatusCompleted, StatusNoShow, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusNoShow, StatusCancelled},
}

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusNoShow, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// CanTransition reports whether from -> to is allowed. Terminal states
// (completed, no_show, cancelled) accept nothing.
func CanTransition(from, to Status) bool {
	for _, s := range statusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// OccupiesSlot is false only for cancelled appointments.
func (s Status) OccupiesSlot() bool { return s != StatusCancelled }

type Modality string

const (
	ModalityInPerson Modality = "presencial"
	ModalityOnline   Modality = "online"
)

func ParseModality(s string) (Modality, error) {
	switch m := Modality(s); m {
	case "":
		return ModalityInPerson, nil
	case ModalityInPerson, ModalityOnline:
		return m, nil
	}
	return "", fmt.Errorf("unknown modality %q", s)
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

type Appointment struct {
	ID             string        `json:"id"`
	ProfessionalID string        `json:"profissional_id"`
	PatientID      string        `json:"paciente_id"`
	PatientName    string        `json:"paciente_nome,omitempty"`
	PatientEmail   string        `json:"paciente_email,omitempty"`
	PatientPhone   string        `json:"paciente_telefone,omitempty"`
	StartsAt       time.Time     `json:"data_hora"`
	Modality       Modality      `json:"modalidade"`
	Notes          string        `json:"observacoes,omitempty"`
	Status         Status        `json:"status"`
	PriceCents     int64         `json:"valor_centavos"`
	PaymentStatus  PaymentStatus `json:"status_pagamento"`
	SeriesID       string        `json:"serie_id,omitempty"`
	Sequence       int           `json:"sequencia,omitempty"`
	CreatedAt      time.Time     `json:"criado_em"`
	UpdatedAt      time.Time     `json:"atualizado_em"`
}
