package observer

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dcshock/respipe/pipeline"
)

const tracerName = "github.com/dcshock/respipe/observer"

// TraceObserver opens a span per pipeline run and a child span per handler.
// Spans are keyed by run ID and pipeline name, so a pipeline nested inside
// another with the same name shares its key and is not traced separately.
//
// Pipeline spans start from the context passed to the run, so under an
// executor built with request.WithTracing they are children of its "execute"
// span. Observer hooks cannot hand a context back to the pipeline, so spans a
// handler starts itself are siblings of the handler spans, not children.
type TraceObserver struct {
	tracer trace.Tracer
	spans  sync.Map // key -> trace.Span
}

// NewTraceObserver uses tp, or the global provider when tp is nil.
func NewTraceObserver(tp trace.TracerProvider) *TraceObserver {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TraceObserver{tracer: tp.Tracer(tracerName)}
}

func pipelineKey(run pipeline.Run) string { return run.ID + "/" + run.Pipeline }

func handlerKey(run pipeline.Run, index int) string {
	return pipelineKey(run) + "#" + strconv.Itoa(index)
}

func (o *TraceObserver) BeforePipeline(ctx context.Context, run pipeline.Run, bag pipeline.Bag) error {
	name := run.Pipeline
	if name == "" {
		name = "anonymous"
	}
	_, span := o.tracer.Start(ctx, "pipeline "+name,
		trace.WithAttributes(
			attribute.String("respipe.run_id", run.ID),
			attribute.String("respipe.pipeline", run.Pipeline),
		))
	o.spans.Store(pipelineKey(run), span)
	return nil
}

func (o *TraceObserver) AfterPipeline(_ context.Context, run pipeline.Run, bag pipeline.Bag, err error) error {
	v, ok := o.spans.LoadAndDelete(pipelineKey(run))
	if !ok {
		return nil
	}
	span := v.(trace.Span)
	span.SetAttributes(
		attribute.String("respipe.outcome", Outcome(err)),
		attribute.Int("respipe.bag.keys", len(bag)),
	)
	endSpan(span, err)
	return nil
}

func (o *TraceObserver) BeforeHandler(ctx context.Context, run pipeline.Run, index int, _ pipeline.Bag) error {
	if v, ok := o.spans.Load(pipelineKey(run)); ok {
		ctx = trace.ContextWithSpan(ctx, v.(trace.Span))
	}
	_, span := o.tracer.Start(ctx, "handler "+strconv.Itoa(index),
		trace.WithAttributes(attribute.Int("respipe.handler.index", index)))
	o.spans.Store(handlerKey(run, index), span)
	return nil
}

func (o *TraceObserver) AfterHandler(_ context.Context, run pipeline.Run, index int, _ pipeline.Bag, handlerErr error, _ time.Duration) error {
	v, ok := o.spans.LoadAndDelete(handlerKey(run, index))
	if !ok {
		return nil
	}
	span := v.(trace.Span)
	span.SetAttributes(attribute.String("respipe.outcome", Outcome(handlerErr)))
	endSpan(span, handlerErr)
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
