package agenda

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/clinicaflow/clinica/services/agenda-service/internal/events"
	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// HandlePaymentConfirmed marks the paid appointment. It runs inside the
// inbox transaction; malformed or unknown payloads are logged and dropped.
func (s *Service) HandlePaymentConfirmed(ctx context.Context, tx pgx.Tx, msg kafka.Message) error {
	var p events.PaymentConfirmedPayload
	if err := json.Unmarshal(msg.Value, &p); err != nil {
		s.logger.Error("invalid payment event payload", zap.Error(err), zap.String("topic", msg.Topic))
		return nil
	}
	if p.AppointmentID == "" {
		s.logger.Warn("payment event without appointment", zap.String("payment_id", p.PaymentID))
		return nil
	}

	if _, err := s.repo.GetAppointmentForUpdate(ctx, tx, p.AppointmentID); err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Warn("payment for unknown appointment", zap.String("appointment_id", p.AppointmentID))
			return nil
		}
		return err
	}
	changed, err := s.repo.MarkPaid(ctx, tx, p.AppointmentID)
	if err != nil {
		return err
	}
	s.logger.Info("appointment payment confirmed",
		zap.String("appointment_id", p.AppointmentID),
		zap.String("payment_id", p.PaymentID),
		zap.String("provider", p.Provider),
		zap.Bool("changed", changed),
	)
	return nil
}
