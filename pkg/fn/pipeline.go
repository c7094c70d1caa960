package fn

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "github.com/WessleyAI/pulse/pkg/fn"

// Stage is a function that transforms In to Out within a context.
type Stage[In, Out any] func(context.Context, In) Result[Out]

// Then composes two stages, short-circuiting on error.
func Then[A, B, C any](first Stage[A, B], second Stage[B, C]) Stage[A, C] {
	return func(ctx context.Context, a A) Result[C] {
		v, err := first(ctx, a).Unwrap()
		if err != nil {
			return Err[C](err)
		}
		return second(ctx, v)
	}
}

// TracedStage wraps a stage in an OTel span named name. Attributes are
// attached to the span before the stage runs.
func TracedStage[In, Out any](name string, stage Stage[In, Out], attrs ...attribute.KeyValue) Stage[In, Out] {
	return func(ctx context.Context, in In) Result[Out] {
		ctx, span := otel.Tracer(tracerName).Start(ctx, name)
		defer span.End()
		span.SetAttributes(attrs...)
		result := stage(ctx, in)
		if result.IsErr() {
			span.RecordError(result.err)
			span.SetStatus(codes.Error, result.err.Error())
		}
		return result
	}
}
