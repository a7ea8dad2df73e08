package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the name of the tracer for cache operations.
	TracerName = "engram"
)

// Span attribute keys
const (
	AttrEntityKey  = "entity_key"
	AttrEdgeKey    = "edge_key"
	AttrSessionID  = "session_id"
	AttrPlane      = "plane"
	AttrEdgeCount  = "edge_count"
	AttrScore      = "score"
	AttrTruncated  = "truncated"
	AttrSweptCount = "swept_count"
)

// Span names
const (
	SpanPromote  = "engram.promote"
	SpanFetch    = "engram.fetch"
	SpanScore    = "engram.score"
	SpanGraduate = "engram.graduate"
	SpanRollback = "engram.rollback"
	SpanSweep    = "engram.sweep"
	SpanIngest   = "engram.ingest"
)

// Tracer provides distributed tracing for cache operations.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new cache tracer.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(TracerName),
	}
}

// StartPromoteSpan starts a span covering the promotion of one entity's
// neighbourhood.
func (t *Tracer) StartPromoteSpan(ctx context.Context, entityKey, sessionID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanPromote,
		trace.WithAttributes(
			attribute.String(AttrEntityKey, entityKey),
			attribute.String(AttrSessionID, sessionID),
		),
	)
}

// StartFetchSpan starts a span covering a ranked read.
func (t *Tracer) StartFetchSpan(ctx context.Context, plane string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanFetch,
		trace.WithAttributes(
			attribute.String(AttrPlane, plane),
		),
	)
}

// StartEdgeSpan starts a span for a per-edge operation such as scoring or
// rollback.
func (t *Tracer) StartEdgeSpan(ctx context.Context, name, edgeKey string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name,
		trace.WithAttributes(
			attribute.String(AttrEdgeKey, edgeKey),
		),
	)
}

// StartPassSpan starts a span for a full background pass (sweep, graduation).
func (t *Tracer) StartPassSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name)
}

// RecordError marks the span failed and records the error.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
