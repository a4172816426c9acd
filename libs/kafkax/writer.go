package kafkax

import (
	"context"
	"time"

	"github.com/clinicaflow/clinica/libs/httpx"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// MessageWriter is the subset of *kafka.Writer producers depend on.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewWriter returns a writer that routes by message topic and hashes keys
// so events for one aggregate stay ordered.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
}

// EventMessage builds a message with the standard headers, the request id
// and the trace context found on ctx.
func EventMessage(ctx context.Context, topic, key, eventID string, payload []byte) kafka.Message {
	h := Headers{
		{Key: HeaderEventID, Value: []byte(eventID)},
		{Key: HeaderEventType, Value: []byte(topic)},
	}
	if rid := httpx.RequestIDFromContext(ctx); rid != "" {
		h.Set(HeaderRequestID, rid)
	}
	otel.GetTextMapPropagator().Inject(ctx, &h)
	return kafka.Message{Topic: topic, Key: []byte(key), Value: payload, Headers: h}
}
