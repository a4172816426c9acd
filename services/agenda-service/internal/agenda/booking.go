package agenda

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/clinicaflow/clinica/libs/outbox"
	"github.com/clinicaflow/clinica/services/agenda-service/internal/events"
	"github.com/clinicaflow/clinica/services/agenda-service/internal/model"
	"github.com/clinicaflow/clinica/services/agenda-service/internal/recurring"
	"github.com/clinicaflow/clinica/services/agenda-service/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const idempotencyScope = "appointments.create"

// CreateResult is what a booking returns; Replayed is set when the
// appointment came from an earlier request with the same idempotency key.
type CreateResult struct {
	Appointment model.Appointment
	Replayed    bool
}

// Create books a single appointment. A non-empty idempotencyKey makes
// retries return the original appointment instead of a conflict.
func (s *Service) Create(ctx context.Context, appt model.Appointment, idempotencyKey string) (CreateResult, error) {
	appt.StartsAt = appt.StartsAt.Truncate(time.Minute)
	if s.cfg.EnforceSchedule {
		ok, err := s.isBookableSlot(ctx, appt.ProfessionalID, appt.StartsAt)
		if err != nil {
			return CreateResult{}, err
		}
		if !ok {
			return CreateResult{}, ErrOutsideSchedule
		}
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return CreateResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var claim storage.Claim
	if idempotencyKey != "" {
		claim = storage.Claim{Scope: idempotencyScope, Key: idempotencyKey, Fingerprint: fingerprint(appt)}
		rec, err := s.repo.ClaimIdempotencyKey(ctx, tx, claim)
		if err != nil {
			return CreateResult{}, err
		}
		if rec.Completed() && rec.AppointmentID != "" {
			var prior model.Appointment
			if err := json.Unmarshal(rec.Response, &prior); err != nil {
				return CreateResult{}, fmt.Errorf("decode stored response: %w", err)
			}
			return CreateResult{Appointment: prior, Replayed: true}, nil
		}
	}

	saved, err := s.createInTx(ctx, tx, appt)
	if err != nil {
		return CreateResult{}, err
	}
	if idempotencyKey != "" {
		body, err := json.Marshal(saved)
		if err != nil {
			return CreateResult{}, fmt.Errorf("encode response: %w", err)
		}
		if err := s.repo.CompleteIdempotencyKey(ctx, tx, claim, saved.ID, http.StatusCreated, body); err != nil {
			return CreateResult{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return CreateResult{}, fmt.Errorf("commit: %w", err)
	}
	s.logger.Info("appointment booked",
		zap.String("appointment_id", saved.ID),
		zap.String("professional_id", saved.ProfessionalID),
		zap.Time("starts_at", saved.StartsAt),
	)
	return CreateResult{Appointment: saved}, nil
}

// fingerprint digests the booking request so a reused key can be told
// apart from a retry. The instant is hashed in UTC so offsets do not matter.
func fingerprint(appt model.Appointment) string {
	appt.StartsAt = appt.StartsAt.UTC()
	raw, _ := json.Marshal(appt)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// createInTx stores appt plus its created and reminder events.
func (s *Service) createInTx(ctx context.Context, tx pgx.Tx, appt model.Appointment) (model.Appointment, error) {
	saved, err := s.repo.CreateAppointment(ctx, tx, appt)
	if err != nil {
		return model.Appointment{}, err
	}
	now := s.now()
	created, err := events.Created(saved, now)
	if err != nil {
		return model.Appointment{}, err
	}
	reminders, err := events.Reminders(saved, s.cfg.Reminders, now)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := s.outbox.InsertAll(ctx, tx, append([]outbox.Event{created}, reminders...)...); err != nil {
		return model.Appointment{}, err
	}
	return saved, nil
}

type RecurringResult struct {
	SeriesID  string
	Requested int
	recurring.Result
}

// CreateRecurring books the first session like Create, failing on conflict,
// then books the remaining weekly sessions best-effort.
func (s *Service) CreateRecurring(ctx context.Context, first model.Appointment, count int) (RecurringResult, error) {
	if count < 1 || count > recurring.MaxSessions {
		return RecurringResult{}, fmt.Errorf("session count must be between 1 and %d", recurring.MaxSessions)
	}
	first.SeriesID = uuid.NewString()
	first.Sequence = 1
	first.StartsAt = first.StartsAt.Truncate(time.Minute).In(s.cfg.Location)
	if s.cfg.EnforceSchedule {
		ok, err := s.isBookableSlot(ctx, first.ProfessionalID, first.StartsAt)
		if err != nil {
			return RecurringResult{}, err
		}
		if !ok {
			return RecurringResult{}, ErrOutsideSchedule
		}
	}

	saved, err := s.CreateSession(ctx, first)
	if err != nil {
		if errors.Is(err, recurring.ErrSlotTaken) {
			return RecurringResult{}, ErrSlotTaken
		}
		return RecurringResult{}, err
	}
	// Sessions step in clinic-local calendar days.
	saved.StartsAt = saved.StartsAt.In(s.cfg.Location)

	res := recurring.Book(ctx, s, s.logger, saved, count)
	s.logger.Info("recurring series booked",
		zap.String("series_id", first.SeriesID),
		zap.Int("requested", count),
		zap.Int("created", len(res.Created)),
	)
	return RecurringResult{SeriesID: first.SeriesID, Requested: count, Result: res}, nil
}

// IsSlotFree implements recurring.Booker.
func (s *Service) IsSlotFree(ctx context.Context, professionalID string, at time.Time) (bool, error) {
	free, err := s.repo.IsSlotFree(ctx, professionalID, at)
	if err != nil || !free || !s.cfg.EnforceSchedule {
		return free, err
	}
	return s.isBookableSlot(ctx, professionalID, at)
}

// CreateSession implements recurring.Booker; each session commits on its own.
func (s *Service) CreateSession(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	saved, err := s.createInTx(ctx, tx, appt)
	if err != nil {
		if errors.Is(err, storage.ErrSlotTaken) {
			return model.Appointment{}, fmt.Errorf("%w: %s", recurring.ErrSlotTaken, appt.StartsAt.Format(time.RFC3339))
		}
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, fmt.Errorf("commit: %w", err)
	}
	return saved, nil
}

var _ recurring.Booker = (*Service)(nil)
