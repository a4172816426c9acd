// Package delivery sends due reminders through the channel they ask for and
// records the outcome.
package delivery

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/clinicaflow/clinica/libs/outbox"
	"github.com/clinicaflow/clinica/services/notification-service/internal/email"
	"github.com/clinicaflow/clinica/services/notification-service/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	TopicReminderDue        = "reminder.due.v1"
	TopicNotificationSent   = "notification.sent.v1"
	TopicNotificationFailed = "notification.failed.v1"

	aggregateDelivery = "delivery"
)

// TextSender delivers a plain text message to a phone number.
type TextSender interface {
	Send(ctx context.Context, to, body string) error
	ProviderID() string
}

type DeliveryStore interface {
	Record(ctx context.Context, tx pgx.Tx, d storage.Delivery) (int64, error)
}

type EventStore interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

type Senders struct {
	Email    email.Sender
	SMS      TextSender
	WhatsApp TextSender
}

type Config struct {
	Location *time.Location
	// FailSuffix forces a failure for recipients ending with it.
	FailSuffix string
	Now        func() time.Time
}

type Service struct {
	senders    Senders
	deliveries DeliveryStore
	events     EventStore
	logger     *zap.Logger
	loc        *time.Location
	failSuffix string
	now        func() time.Time
}

func NewService(senders Senders, deliveries DeliveryStore, events EventStore, logger *zap.Logger, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		senders:    senders,
		deliveries: deliveries,
		events:     events,
		logger:     logger.Named("delivery"),
		loc:        cfg.Location,
		failSuffix: cfg.FailSuffix,
		now:        cfg.Now,
	}
}

type sentPayload struct {
	JobID         int64     `json:"job_id"`
	AppointmentID string    `json:"appointment_id"`
	Channel       string    `json:"channel"`
	Recipient     string    `json:"recipient"`
	ProviderID    string    `json:"provider_id"`
	SentAt        time.Time `json:"sent_at"`
}

type failedPayload struct {
	JobID         int64     `json:"job_id"`
	AppointmentID string    `json:"appointment_id"`
	Channel       string    `json:"channel"`
	Recipient     string    `json:"recipient"`
	Reason        string    `json:"reason"`
	FailedAt      time.Time `json:"failed_at"`
}

// HandleReminderDue is an inbox handler for reminder.due.v1. Delivery
// failures are recorded and reported, not retried.
func (s *Service) HandleReminderDue(ctx context.Context, tx pgx.Tx, msg kafka.Message) error {
	r, err := ParseReminder(msg.Value)
	if errors.Is(err, ErrInvalidReminder) {
		s.logger.Warn("reminder dropped", zap.Error(err), zap.Int64("offset", msg.Offset))
		return nil
	}
	if err != nil {
		return err
	}
	m := Render(r, s.loc)
	providerID, sendErr := s.send(ctx, r, m)

	d := storage.Delivery{
		ReminderJobID: r.JobID,
		AppointmentID: r.AppointmentID,
		Channel:       r.Channel,
		Recipient:     r.Recipient,
		ProviderID:    providerID,
		Status:        storage.StatusSent,
		Body:          m.Body,
	}
	log := s.logger.With(zap.String("appointment_id", r.AppointmentID), zap.String("channel", r.Channel))
	var evt outbox.Event
	now := s.now().UTC()
	if sendErr != nil {
		d.Status = storage.StatusFailed
		d.FailureReason = sendErr.Error()
		log.Error("reminder delivery failed", zap.Error(sendErr))
		evt, err = outbox.NewEvent(aggregateDelivery, r.AppointmentID, TopicNotificationFailed, failedPayload{
			JobID:         r.JobID,
			AppointmentID: r.AppointmentID,
			Channel:       r.Channel,
			Recipient:     r.Recipient,
			Reason:        d.FailureReason,
			FailedAt:      now,
		})
	} else {
		log.Info("reminder delivered", zap.String("provider", providerID))
		evt, err = outbox.NewEvent(aggregateDelivery, r.AppointmentID, TopicNotificationSent, sentPayload{
			JobID:         r.JobID,
			AppointmentID: r.AppointmentID,
			Channel:       r.Channel,
			Recipient:     r.Recipient,
			ProviderID:    providerID,
			SentAt:        now,
		})
	}
	if err != nil {
		return err
	}
	id, err := s.deliveries.Record(ctx, tx, d)
	if err != nil {
		return err
	}
	log.Debug("delivery recorded", zap.Int64("delivery_id", id))
	return s.events.Insert(ctx, tx, evt)
}

func (s *Service) send(ctx context.Context, r Reminder, m Message) (string, error) {
	if s.failSuffix != "" && strings.HasSuffix(r.Recipient, s.failSuffix) {
		return "", errors.New("simulated failure")
	}
	switch r.Channel {
	case ChannelEmail:
		if s.senders.Email == nil {
			return "", errors.New("email sender not configured")
		}
		return s.senders.Email.ProviderID(), s.senders.Email.Send(ctx, r.Recipient, m.Subject, m.Body)
	case ChannelSMS:
		return sendText(ctx, s.senders.SMS, r.Channel, r.Recipient, m.Body)
	case ChannelWhatsApp:
		return sendText(ctx, s.senders.WhatsApp, r.Channel, r.Recipient, m.Body)
	default:
		return "", errors.New("unsupported channel: " + r.Channel)
	}
}

func sendText(ctx context.Context, sender TextSender, channel, to, body string) (string, error) {
	if sender == nil {
		return "", errors.New(channel + " sender not configured")
	}
	return sender.ProviderID(), sender.Send(ctx, to, body)
}

// NoopText accepts every message. It stands in for an unconfigured channel.
type NoopText struct{ ID string }

func (n NoopText) Send(context.Context, string, string) error { return nil }
func (n NoopText) ProviderID() string { return n.ID }

// NoopEmail accepts every message.
type NoopEmail struct{}

func (NoopEmail) Send(context.Context, string, string, string) error { return nil }
func (NoopEmail) ProviderID() string { return "email-noop" }
