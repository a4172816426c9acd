package jobs

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/clinicaflow/clinica/libs/inbox"
	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handlers turns agenda events into job changes. Both run inside the
// inbox transaction.
type Handlers struct {
	repo   *Repository
	logger *zap.Logger
}

func NewHandlers(repo *Repository, logger *zap.Logger) *Handlers {
	return &Handlers{repo: repo, logger: logger.Named("reminder_consumer")}
}

func (h *Handlers) ReminderRequested() inbox.TxHandler {
	return func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error {
		job, err := ParseRequest(msg.Value)
		if errors.Is(err, ErrInvalidRequest) {
			h.logger.Warn("reminder request dropped", zap.Error(err), zap.Int64("offset", msg.Offset))
			return nil
		}
		if err != nil {
			return err
		}
		created, err := h.repo.Insert(ctx, tx, job)
		if err != nil {
			return err
		}
		h.logger.Info("reminder scheduled",
			zap.String("appointment_id", job.AppointmentID),
			zap.String("channel", job.Channel),
			zap.Time("remind_at", job.RemindAt),
			zap.Bool("created", created),
		)
		return nil
	}
}

func (h *Handlers) AppointmentCancelled() inbox.TxHandler {
	return func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error {
		var p cancelPayload
		if err := json.Unmarshal(msg.Value, &p); err != nil || p.AppointmentID == "" {
			h.logger.Warn("cancellation dropped", zap.Int64("offset", msg.Offset), zap.Error(err))
			return nil
		}
		n, err := h.repo.CancelForAppointment(ctx, tx, p.AppointmentID)
		if err != nil {
			return err
		}
		h.logger.Info("reminders cancelled", zap.String("appointment_id", p.AppointmentID), zap.Int64("count", n))
		return nil
	}
}

// Route dispatches by topic so one consumer group can serve both streams.
func (h *Handlers) Route() inbox.TxHandler {
	requested, cancelled := h.ReminderRequested(), h.AppointmentCancelled()
	return func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error {
		switch msg.Topic {
		case TopicReminderRequested:
			return requested(ctx, tx, msg)
		case TopicAppointmentCanceled:
			return cancelled(ctx, tx, msg)
		default:
			h.logger.Warn("unexpected topic", zap.String("topic", msg.Topic))
			return nil
		}
	}
}
