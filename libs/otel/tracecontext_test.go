package otelx

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceContextRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	const traceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

	ctx := TraceContext{Parent: traceparent}.Restore(context.Background())
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() || sc.TraceID().String() != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("expected remote span context, got %+v", sc)
	}
	if got := Capture(ctx); got.Parent != traceparent {
		t.Fatalf("expected %s, got %s", traceparent, got.Parent)
	}
}

func TestZeroTraceContextKeepsContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), struct{}{}, "x")
	if got := (TraceContext{}).Restore(ctx); got != ctx {
		t.Fatalf("expected the same context back")
	}
	if !Capture(context.Background()).IsZero() {
		t.Fatalf("expected empty capture without a span")
	}
}

func TestConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "")
	t.Setenv("OTEL_SAMPLING_RATIO", "2")
	cfg := ConfigFromEnv("agenda-service")
	if cfg.Enabled || cfg.SampleRatio != 1 || cfg.ServiceName != "agenda-service" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}
