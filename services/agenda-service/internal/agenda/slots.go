package agenda

import (
	"context"
	"time"

	"github.com/clinicaflow/clinica/services/agenda-service/internal/model"
	"github.com/clinicaflow/clinica/services/agenda-service/internal/slots"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SlotSource is the read side slot generation depends on.
type SlotSource interface {
	ListTemplates(ctx context.Context, professionalID string) ([]model.WeeklyTemplate, error)
	ListExceptionDates(ctx context.Context, professionalID string, from model.Date) ([]model.Date, error)
	ListBookedInstants(ctx context.Context, professionalID string, from time.Time) ([]time.Time, error)
}

// Slots loads the three inputs concurrently and generates the slot list.
// Any read failure fails the whole call; nothing partial is returned.
func (s *Service) Slots(ctx context.Context, professionalID string, target *model.Date) ([]model.Slot, error) {
	now := s.now().In(s.cfg.Location)
	today := model.DateOf(now)
	// Dates before today are never generated, so older rows are not read.
	from := today
	if target != nil && target.Before(today) {
		return []model.Slot{}, nil
	}

	var (
		templates  []model.WeeklyTemplate
		exceptions []model.Date
		bookings   []time.Time
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		templates, err = s.source.ListTemplates(gctx, professionalID)
		return err
	})
	g.Go(func() (err error) {
		exceptions, err = s.source.ListExceptionDates(gctx, professionalID, from)
		return err
	})
	g.Go(func() (err error) {
		bookings, err = s.source.ListBookedInstants(gctx, professionalID, from.In(s.cfg.Location))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := slots.Generate(slots.Input{
		ProfessionalID: professionalID,
		Templates:      templates,
		Exceptions:     exceptions,
		Bookings:       bookings,
		TargetDate:     target,
		Now:            now,
		Location:       s.cfg.Location,
		HorizonDays:    s.cfg.HorizonDays,
	})
	for _, tpl := range out.Invalid {
		s.logger.Warn("skipping malformed weekly template",
			zap.String("professional_id", professionalID),
			zap.String("template_id", tpl.ID),
			zap.Int("day_of_week", int(tpl.DayOfWeek)),
			zap.Error(tpl.Validate()),
		)
	}
	if out.Slots == nil {
		return []model.Slot{}, nil
	}
	return out.Slots, nil
}

// isBookableSlot reports whether at falls exactly on a free generated slot.
func (s *Service) isBookableSlot(ctx context.Context, professionalID string, at time.Time) (bool, error) {
	local := at.In(s.cfg.Location)
	day := model.DateOf(local)
	list, err := s.Slots(ctx, professionalID, &day)
	if err != nil {
		return false, err
	}
	hhmm := local.Format("15:04")
	for _, sl := range list {
		if sl.Time == hhmm {
			return sl.Available, nil
		}
	}
	return false, nil
}
