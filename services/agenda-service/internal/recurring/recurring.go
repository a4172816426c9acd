package recurring

import (
	"context"
	"errors"
	"time"

	"github.com/clinicaflow/clinica/services/agenda-service/internal/model"
	"go.uber.org/zap"
)

// MaxSessions caps a single series at one year of weekly sessions.
const MaxSessions = 52

// ErrSlotTaken is returned by Booker.CreateSession when another booking won
// the slot between the availability check and the insert.
var ErrSlotTaken = errors.New("slot already taken")

// Booker checks and reserves one session at a time.
type Booker interface {
	IsSlotFree(ctx context.Context, professionalID string, at time.Time) (bool, error)
	CreateSession(ctx context.Context, appt model.Appointment) (model.Appointment, error)
}

type Session struct {
	ID       string    `json:"id"`
	StartsAt time.Time `json:"data_hora"`
	Sequence int       `json:"sequencia"`
}

// Skip reasons.
const (
	ReasonUnavailable = "unavailable"
	ReasonCheckFailed = "check_failed"
	ReasonFailed      = "create_failed"
	ReasonCancelled   = "cancelled"
)

type Skipped struct {
	Sequence int       `json:"sequencia"`
	StartsAt time.Time `json:"data_hora"`
	Reason   string    `json:"motivo"`
}

type Result struct {
	Created []Session
	Skipped []Skipped
}

// Instants returns the start of each of count weekly sessions. Session k
// starts 7*(k-1) calendar days after first, at the same wall-clock time in
// first's location.
func Instants(first time.Time, count int) []time.Time {
	out := make([]time.Time, 0, count)
	for k := 1; k <= count; k++ {
		out = append(out, first.AddDate(0, 0, 7*(k-1)))
	}
	return out
}

// Book reserves sessions 2..count of the series started by first, which the
// caller has already stored; first.ID is reported as session 1. Sessions are
// booked sequentially and any one that cannot be booked is skipped, so the
// result may be partial but Book itself never fails.
func Book(ctx context.Context, booker Booker, logger *zap.Logger, first model.Appointment, count int) Result {
	res := Result{
		Created: []Session{{ID: first.ID, StartsAt: first.StartsAt, Sequence: 1}},
	}
	log := logger.With(
		zap.String("series_id", first.SeriesID),
		zap.String("professional_id", first.ProfessionalID),
	)

	for k, at := range Instants(first.StartsAt, count) {
		seq := k + 1
		if seq == 1 {
			continue
		}
		if ctx.Err() != nil {
			res.Skipped = append(res.Skipped, Skipped{Sequence: seq, StartsAt: at, Reason: ReasonCancelled})
			continue
		}

		free, err := booker.IsSlotFree(ctx, first.ProfessionalID, at)
		if err != nil {
			log.Warn("session availability check failed", zap.Int("sequence", seq), zap.Time("starts_at", at), zap.Error(err))
			res.Skipped = append(res.Skipped, Skipped{Sequence: seq, StartsAt: at, Reason: ReasonCheckFailed})
			continue
		}
		if !free {
			log.Info("session skipped, slot unavailable", zap.Int("sequence", seq), zap.Time("starts_at", at))
			res.Skipped = append(res.Skipped, Skipped{Sequence: seq, StartsAt: at, Reason: ReasonUnavailable})
			continue
		}

		next := first
		next.ID = ""
		next.StartsAt = at
		next.Sequence = seq
		created, err := booker.CreateSession(ctx, next)
		if err != nil {
			reason := ReasonFailed
			if errors.Is(err, ErrSlotTaken) {
				reason = ReasonUnavailable
			}
			log.Warn("session booking failed", zap.Int("sequence", seq), zap.Time("starts_at", at), zap.Error(err))
			res.Skipped = append(res.Skipped, Skipped{Sequence: seq, StartsAt: at, Reason: reason})
			continue
		}
		res.Created = append(res.Created, Session{ID: created.ID, StartsAt: created.StartsAt, Sequence: seq})
	}
	return res
}
