package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attributes must stay low cardinality: URIs and file names belong in
// logs and span events, never in attributes.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation runs fn inside a span named operationName.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if !t.Enabled() {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)

	status := "success"
	if err != nil {
		status = "error"

		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", status),
		attribute.Float64("duration_seconds", time.Since(start).Seconds()),
	)

	return err
}

// InstrumentDBOperation instruments database operations.
func (t *Telemetry) InstrumentDBOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	if !t.Enabled() {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "db_"+operation, "database", fn)

	t.RecordDBOperation(operation, statusOf(err), time.Since(start))

	return err
}

// InstrumentFetch instruments the retrieval of one benchmark. The URI is
// attached as a span event rather than an attribute.
func (t *Telemetry) InstrumentFetch(ctx context.Context, uri string, fn InstrumentedFunc) error {
	if !t.Enabled() {
		return fn(ctx)
	}

	start := time.Now()

	t.incrementActiveFetches()
	defer t.decrementActiveFetches()

	err := t.InstrumentOperation(ctx, "fetch", "fetcher", func(ctx context.Context) error {
		trace.SpanFromContext(ctx).AddEvent("fetch.start", trace.WithAttributes(attribute.String("uri", uri)))

		return fn(ctx)
	})

	t.RecordFetch(statusOf(err), time.Since(start))

	return err
}

// InstrumentRun wraps a whole retrieval run in a parent span.
func (t *Telemetry) InstrumentRun(ctx context.Context, total int, fn InstrumentedFunc) error {
	if !t.Enabled() {
		return fn(ctx)
	}

	return t.InstrumentOperation(ctx, "retrieve", "fetcher", func(ctx context.Context) error {
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int("uri_count", total))

		return fn(ctx)
	})
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}

	return "success"
}
