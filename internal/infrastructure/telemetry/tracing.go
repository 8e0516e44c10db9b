package telemetry

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the tracer used for billing spans
const TracerName = "recurring-billing"

// MeterName is the meter used for billing and HTTP instruments
const MeterName = "recurring-billing"

// StartSpan starts an internal span from the global tracer. The caller must
// call span.End.
//
//	ctx, span := telemetry.StartSpan(ctx, "billing.task.close", telemetry.AttrOrderID.String(id))
//	defer span.End()
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...))
}

// RecordError marks the span as failed. A nil error or span is ignored.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetOK marks the span as successful
func SetOK(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// UUID returns a string attribute for an ID
func UUID(key attribute.Key, id uuid.UUID) attribute.KeyValue {
	return key.String(id.String())
}

// GetTraceID returns the trace ID from context, or "" when there is none
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
