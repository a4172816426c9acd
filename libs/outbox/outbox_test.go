package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/clinicaflow/clinica/libs/kafkax"
	otelx "github.com/clinicaflow/clinica/libs/otel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestNewEventMarshalsPayload(t *testing.T) {
	evt, err := NewEvent("appointment", "appt-1", "agenda.appointment.created.v1", map[string]string{"id": "appt-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evt.EventID == "" {
		t.Fatalf("expected event id")
	}
	var got map[string]string
	if err := json.Unmarshal(evt.Payload, &got); err != nil || got["id"] != "appt-1" {
		t.Fatalf("unexpected payload %s", evt.Payload)
	}
	if _, err := NewEvent("appointment", "x", "t", func() {}); err == nil {
		t.Fatalf("expected marshal error for func payload")
	}
	if _, err := NewEvent("appointment", "", "agenda.appointment.created.v1", nil); !errors.Is(err, errUnroutable) {
		t.Fatalf("expected errUnroutable without aggregate id, got %v", err)
	}
}

func TestMessagesCarryStoredTraceContext(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	const traceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	msgs, ids := Messages(context.Background(), []Record{
		{
			ID:          7,
			EventID:     "evt-1",
			AggregateID: "appt-1",
			EventType:   "agenda.appointment.created.v1",
			Payload:     []byte(`{}`),
			Trace:       otelx.TraceContext{Parent: traceparent},
		},
		{ID: 9, EventID: "evt-2", AggregateID: "pay-1", EventType: "payment.paid.v1", Payload: []byte(`{}`)},
	})
	if len(msgs) != 2 || ids[0] != 7 || ids[1] != 9 {
		t.Fatalf("unexpected ids %v", ids)
	}
	msg := msgs[0]
	if msg.Topic != "agenda.appointment.created.v1" || string(msg.Key) != "appt-1" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if got := kafkax.HeaderValue(msg.Headers, "traceparent"); got != traceparent {
		t.Fatalf("expected traceparent header, got %q", got)
	}
	if got := kafkax.HeaderValue(msg.Headers, kafkax.HeaderEventID); got != "evt-1" {
		t.Fatalf("expected event id header, got %q", got)
	}
	if got := kafkax.HeaderValue(msgs[1].Headers, "traceparent"); got != "" {
		t.Fatalf("expected no trace header for untraced row, got %q", got)
	}
}
