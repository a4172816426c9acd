package agenda

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicaflow/clinica/services/agenda-service/internal/model"
	"go.uber.org/zap"
)

func (s *Service) ListTemplates(ctx context.Context, professionalID string) ([]model.WeeklyTemplate, error) {
	return s.repo.ListTemplates(ctx, professionalID)
}

// ReplaceTemplates makes templates the professional's full weekly schedule:
// listed weekdays are upserted and every other weekday is removed.
func (s *Service) ReplaceTemplates(ctx context.Context, professionalID string, templates []model.WeeklyTemplate) ([]model.WeeklyTemplate, error) {
	seen := make(map[time.Weekday]bool, len(templates))
	for _, tpl := range templates {
		if err := tpl.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
		}
		if seen[tpl.DayOfWeek] {
			return nil, fmt.Errorf("%w: day %d listed twice", ErrInvalidTemplate, tpl.DayOfWeek)
		}
		seen[tpl.DayOfWeek] = true
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	days := make([]time.Weekday, 0, len(templates))
	saved := make([]model.WeeklyTemplate, 0, len(templates))
	for _, tpl := range templates {
		tpl.ProfessionalID = professionalID
		out, err := s.repo.UpsertTemplate(ctx, tx, tpl)
		if err != nil {
			return nil, err
		}
		days = append(days, tpl.DayOfWeek)
		saved = append(saved, out)
	}
	if err := s.repo.DeleteTemplatesExcept(ctx, tx, professionalID, days); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	s.logger.Info("weekly templates replaced", zap.String("professional_id", professionalID), zap.Int("count", len(saved)))
	return saved, nil
}

func (s *Service) DeleteTemplate(ctx context.Context, professionalID string, day time.Weekday) error {
	return s.repo.DeleteTemplate(ctx, professionalID, day)
}

// ListExceptions returns upcoming exceptions, including today.
func (s *Service) ListExceptions(ctx context.Context, professionalID string) ([]model.Exception, error) {
	return s.repo.ListExceptions(ctx, professionalID, model.DateOf(s.now().In(s.cfg.Location)))
}

// AddException blocks a date. Existing appointments on that date are kept.
func (s *Service) AddException(ctx context.Context, e model.Exception) (model.Exception, error) {
	saved, err := s.repo.InsertException(ctx, e)
	if err != nil {
		return model.Exception{}, err
	}
	s.logger.Info("schedule exception added", zap.String("professional_id", e.ProfessionalID), zap.String("date", e.Date.String()))
	return saved, nil
}

func (s *Service) DeleteException(ctx context.Context, professionalID string, date model.Date) error {
	return s.repo.DeleteException(ctx, professionalID, date)
}
