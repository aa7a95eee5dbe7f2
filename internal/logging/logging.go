// Package logging wires goa.design/clue/log into the platform so every
// component logs through a context-carried, structured logger instead of
// package-level state. Call NewContext once per process (or per request)
// and pass the resulting context down.
//
// Phase additionally opens an OTEL span for the duration it brackets,
// following the same Tracer.Start/span.End shape as the teacher's
// runtime/agent/telemetry.ClueTracer: a package boundary crossed by a
// suspension point (an LLM call, a store round-trip, a tool invocation)
// is exactly what Phase already wraps at every call site, so this is the
// one place tracing needs to be wired for it to cover the whole codebase.
package logging

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"goa.design/clue/log"
)

var (
	tracer = otel.Tracer("github.com/engintel/platform")
	meter  = otel.Meter("github.com/engintel/platform")

	phaseDuration metric.Float64Histogram
)

func init() {
	// Float64Histogram only errors on a malformed instrument name, never on
	// a missing MeterProvider (the global provider defaults to a no-op one,
	// so this works in tests and any binary that never configures OTLP).
	phaseDuration, _ = meter.Float64Histogram("phase_duration_seconds")
}

// NewContext returns a context carrying a clue logger configured for the
// given service name. debug enables debug-level output and source location.
func NewContext(ctx context.Context, service string, debug bool) context.Context {
	ctx = log.Context(ctx, log.WithFormat(log.FormatJSON))
	if debug {
		ctx = log.Context(ctx, log.WithDebug())
	}
	return log.With(ctx, log.KV{K: "service", V: service})
}

// Phase logs the start and (via the returned func) the end of a named
// phase and opens an OTEL span bracketing the same interval, mirroring the
// teacher's PhaseLogger — useful for ingestion runs, materialiser batches,
// and supervisor turns where knowing wall-clock duration (and, once an
// OTLP exporter is configured, a trace) matters. Callers must use the
// returned context for any further work done inside the phase so nested
// spans parent correctly.
func Phase(ctx context.Context, name string) (context.Context, func(err *error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, name)
	log.Info(ctx, log.KV{K: "phase", V: name}, log.KV{K: "event", V: "start"})
	return ctx, func(err *error) {
		elapsed := time.Since(start)
		fields := []log.Fielder{
			log.KV{K: "phase", V: name},
			log.KV{K: "event", V: "end"},
			log.KV{K: "duration_ms", V: elapsed.Milliseconds()},
		}
		failed := err != nil && *err != nil
		if phaseDuration != nil {
			phaseDuration.Record(ctx, elapsed.Seconds(),
				metric.WithAttributes(attribute.String("phase", name), attribute.Bool("failed", failed)))
		}
		if failed {
			span.RecordError(*err)
			span.SetStatus(codes.Error, (*err).Error())
			span.End()
			log.Error(ctx, *err, fields...)
			return
		}
		span.SetStatus(codes.Ok, "")
		span.End()
		log.Info(ctx, fields...)
	}
}
