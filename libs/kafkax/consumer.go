package kafkax

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Handler processes one message. A non-nil error triggers a retry.
type Handler func(ctx context.Context, msg kafka.Message) error

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	Topics      []string
	MaxAttempts int
	RetryDelay  time.Duration
}

// Consumer reads a consumer group and commits each offset once the handler
// succeeded or ran out of attempts.
type Consumer struct {
	reader      MessageReader
	logger      *zap.Logger
	handler     Handler
	maxAttempts int
	retryDelay  time.Duration
}

func NewConsumer(logger *zap.Logger, cfg ConsumerConfig, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	return newConsumer(reader, logger, cfg, handler)
}

func newConsumer(reader MessageReader, logger *zap.Logger, cfg ConsumerConfig, handler Handler) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Consumer{
		reader:      reader,
		logger:      logger.Named("consumer").With(zap.String("group", cfg.GroupID)),
		handler:     handler,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
	}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			c.logger.Error("kafka fetch error", zap.Error(err))
			if !sleep(ctx, c.retryDelay) {
				return
			}
			continue
		}

		if !c.process(ctx, msg) {
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", zap.Error(err), zap.String("topic", msg.Topic), zap.Int64("offset", msg.Offset))
		}
	}
}

// process reports false only when ctx was cancelled before the message was
// settled, leaving the offset uncommitted for redelivery.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	meta := ExtractEventMeta(msg)
	ctxSpan, span := otel.Tracer("kafka").Start(messageContext(ctx, msg, meta), "kafka.consume "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", msg.Topic),
			attribute.String("messaging.message.id", meta.EventID),
		),
	)
	defer span.End()

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err := c.handler(ctxSpan, msg)
		if err == nil {
			return true
		}
		span.RecordError(err)
		c.logger.Warn("event handler failed",
			zap.Error(err),
			zap.String("event_id", meta.EventID),
			zap.String("event_type", meta.EventType),
			zap.String("request_id", meta.RequestID),
			zap.Int("attempt", attempt),
		)
		if attempt == c.maxAttempts || !sleep(ctx, c.retryDelay*time.Duration(attempt)) {
			break
		}
	}
	if ctx.Err() != nil {
		return false
	}
	span.SetStatus(codes.Error, "handler gave up")
	c.logger.Error("event dropped after retries",
		zap.String("event_id", meta.EventID),
		zap.String("event_type", meta.EventType),
		zap.Int64("offset", msg.Offset),
	)
	return true
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
