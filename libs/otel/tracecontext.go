package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	keyTraceparent = "traceparent"
	keyTracestate  = "tracestate"
)

// TraceContext is the W3C trace context in its stored form. Outbox rows and
// reminder jobs keep it so work done later joins the originating trace.
type TraceContext struct {
	Parent string
	State  string
}

// Capture serialises the span context of ctx with the global propagator.
func Capture(ctx context.Context) TraceContext {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return TraceContext{Parent: carrier[keyTraceparent], State: carrier[keyTracestate]}
}

func (tc TraceContext) IsZero() bool { return tc.Parent == "" && tc.State == "" }

// Restore returns ctx carrying tc as its remote parent. A zero value leaves
// ctx unchanged.
func (tc TraceContext) Restore(ctx context.Context) context.Context {
	if tc.IsZero() {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier{
		keyTraceparent: tc.Parent,
		keyTracestate:  tc.State,
	})
}
