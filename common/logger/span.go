package logger

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "notifier"

// SpanContext wraps an OTel span for managed lifecycle.
type SpanContext struct {
	ctx  context.Context
	span trace.Span
}

// StartSpan creates a new span as a child of the current trace context.
// The span's attributes are seeded from the context LogFields so traces and
// logs carry the same issue and chat identifiers.
//
//	sc := logger.StartSpan(ctx, "reconcile.tick")
//	defer sc.End()
//	ctx = sc.Context()
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) *SpanContext {
	opts = append(opts, trace.WithAttributes(fieldAttributes(GetLogFields(ctx))...))
	ctx, span := otel.Tracer(tracerName).Start(ctx, name, opts...)
	return &SpanContext{ctx: ctx, span: span}
}

// StartSpanFromTraceID creates a span linked to a trace started in another
// process, e.g. the webhook request that enqueued a reconcile request.
// An empty or malformed traceID starts a fresh root span.
func StartSpanFromTraceID(ctx context.Context, traceIDStr string, name string, opts ...trace.SpanStartOption) *SpanContext {
	traceID, err := trace.TraceIDFromHex(traceIDStr)
	if traceIDStr == "" || err != nil {
		return StartSpan(ctx, name, opts...)
	}

	remote := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})

	opts = append(opts, trace.WithLinks(trace.Link{SpanContext: remote}))
	return StartSpan(trace.ContextWithRemoteSpanContext(ctx, remote), name, opts...)
}

// Context returns the context with the span attached.
func (sc *SpanContext) Context() context.Context {
	return sc.ctx
}

// End completes the span. Safe to call multiple times.
func (sc *SpanContext) End() {
	if sc.span != nil {
		sc.span.End()
	}
}

// RecordError records err on the span and marks the span failed.
func (sc *SpanContext) RecordError(err error) {
	if sc.span != nil && err != nil {
		sc.span.RecordError(err)
		sc.span.SetStatus(codes.Error, err.Error())
	}
}

// SetAttributes adds attributes to the span.
func (sc *SpanContext) SetAttributes(attrs ...attribute.KeyValue) {
	if sc.span != nil {
		sc.span.SetAttributes(attrs...)
	}
}

// TraceID returns the hex trace id, or "" when the span is not recording.
func (sc *SpanContext) TraceID() string {
	if sc.span == nil || !sc.span.SpanContext().HasTraceID() {
		return ""
	}
	return sc.span.SpanContext().TraceID().String()
}

func fieldAttributes(fields LogFields) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if fields.ProjectID != nil {
		attrs = append(attrs, attribute.Int64("gitlab.project_id", *fields.ProjectID))
	}
	if fields.IssueIID != nil {
		attrs = append(attrs, attribute.Int64("gitlab.issue_iid", *fields.IssueIID))
	}
	if fields.ChatID != nil {
		attrs = append(attrs, attribute.Int64("telegram.chat_id", *fields.ChatID))
	}
	if fields.Component != "" {
		attrs = append(attrs, attribute.String("component", fields.Component))
	}
	return attrs
}
