package kafkax

import (
	"context"
	"strings"

	"github.com/clinicaflow/clinica/libs/httpx"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Header keys carried on every event message.
const (
	HeaderEventID   = "event_id"
	HeaderEventType = "event_type"
	HeaderRequestID = "request_id"
)

// Headers adapts a message's headers to the OTel text map carrier so W3C
// trace context rides along with each event.
type Headers []kafka.Header

var _ propagation.TextMapCarrier = (*Headers)(nil)

func (h Headers) Get(key string) string {
	for _, kv := range h {
		if kv.Key == key {
			return string(kv.Value)
		}
	}
	return ""
}

func (h *Headers) Set(key, value string) {
	for i := range *h {
		if (*h)[i].Key == key {
			(*h)[i].Value = []byte(value)
			return
		}
	}
	*h = append(*h, kafka.Header{Key: key, Value: []byte(value)})
}

func (h Headers) Keys() []string {
	keys := make([]string, len(h))
	for i, kv := range h {
		keys[i] = kv.Key
	}
	return keys
}

func HeaderValue(headers []kafka.Header, key string) string {
	return Headers(headers).Get(key)
}

// EventMeta is what a consumer needs to know about a message before it
// decodes the payload.
type EventMeta struct {
	EventID   string
	EventType string
	RequestID string
}

// ExtractEventMeta falls back to the message key and topic when a producer
// left the headers out.
func ExtractEventMeta(msg kafka.Message) EventMeta {
	h := Headers(msg.Headers)
	meta := EventMeta{
		EventID:   h.Get(HeaderEventID),
		EventType: h.Get(HeaderEventType),
		RequestID: h.Get(HeaderRequestID),
	}
	if meta.EventID == "" {
		meta.EventID = string(msg.Key)
	}
	if meta.EventType == "" {
		meta.EventType = msg.Topic
	}
	return meta
}

// messageContext restores the producer's trace and request id on ctx.
func messageContext(ctx context.Context, msg kafka.Message, meta EventMeta) context.Context {
	h := Headers(msg.Headers)
	ctx = otel.GetTextMapPropagator().Extract(ctx, &h)
	return httpx.ContextWithRequestID(ctx, meta.RequestID)
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
