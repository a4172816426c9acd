package agenda

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clinicaflow/clinica/libs/outbox"
	"github.com/clinicaflow/clinica/services/agenda-service/internal/events"
	"github.com/clinicaflow/clinica/services/agenda-service/internal/model"
	"github.com/clinicaflow/clinica/services/agenda-service/internal/storage"
	"go.uber.org/zap"
)

var (
	ErrNotFound          = storage.ErrNotFound
	ErrSlotTaken         = storage.ErrSlotTaken
	ErrDuplicate         = storage.ErrDuplicate
	ErrKeyReused         = storage.ErrKeyReused
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrOutsideSchedule   = errors.New("requested time is not a bookable slot")
	ErrInvalidTemplate   = errors.New("invalid weekly template")
)

type Config struct {
	Location    *time.Location
	Reminders   events.ReminderPolicy
	HorizonDays int
	// EnforceSchedule rejects single bookings that do not land on a
	// generated slot.
	EnforceSchedule bool
}

// Service owns the agenda use cases. State changes and their outbox events
// are written in one transaction.
type Service struct {
	repo   *storage.Repository
	source SlotSource
	outbox *outbox.Repository
	logger *zap.Logger
	cfg    Config
	now    func() time.Time
}

func NewService(repo *storage.Repository, outboxRepo *outbox.Repository, logger *zap.Logger, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	cfg.Reminders.Location = cfg.Location
	return &Service{
		repo:   repo,
		source: repo,
		outbox: outboxRepo,
		logger: logger.Named("agenda"),
		cfg:    cfg,
		now:    time.Now,
	}
}

func (s *Service) Location() *time.Location { return s.cfg.Location }

func (s *Service) Get(ctx context.Context, id string) (model.Appointment, error) {
	return s.repo.GetAppointment(ctx, id)
}

func (s *Service) List(ctx context.Context, f storage.AppointmentFilter) ([]model.Appointment, error) {
	return s.repo.ListAppointments(ctx, f)
}

// ChangeStatus applies a status transition and emits the matching event.
func (s *Service) ChangeStatus(ctx context.Context, id string, to model.Status) (model.Appointment, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := s.repo.GetAppointmentForUpdate(ctx, tx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if current.Status == to {
		return current, nil
	}
	if !model.CanTransition(current.Status, to) {
		return model.Appointment{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
	}
	updated, err := s.repo.UpdateStatus(ctx, tx, id, to)
	if err != nil {
		return model.Appointment{}, err
	}
	evt, err := events.StatusChanged(updated, current.Status, s.now())
	if err != nil {
		return model.Appointment{}, err
	}
	if err := s.outbox.Insert(ctx, tx, evt); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, fmt.Errorf("commit: %w", err)
	}
	s.logger.Info("appointment status changed",
		zap.String("appointment_id", id),
		zap.String("from", string(current.Status)),
		zap.String("to", string(to)),
	)
	return updated, nil
}

func (s *Service) Cancel(ctx context.Context, id string) (model.Appointment, error) {
	return s.ChangeStatus(ctx, id, model.StatusCancelled)
}
