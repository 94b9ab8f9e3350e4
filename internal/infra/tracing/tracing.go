// Package tracing wires OpenTelemetry spans around workflow executions and
// node executions. The teacher's go.mod lists the full otel/otlptracehttp/
// otelecho stack as direct dependencies, but — like robfig/cron and
// golang-migrate — no file in the teacher's own tree constructs a
// TracerProvider; `otelecho` is imported only by the HTTP middleware layer
// (internal/infra/http) as Echo middleware. This package is the engine-side
// home: one span per execution (workflow:start..workflow:finish) with one
// child span per node (node:start..node:finish/node:error), driven off the
// event bus exactly like internal/infra/monitoring.
package tracing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowcraft/flowcraft/internal/pkg/eventbus"
)

// NewProvider builds an sdktrace.TracerProvider exporting spans over OTLP/
// HTTP to collectorEndpoint (e.g. "localhost:4318"), tagging every span with
// serviceName.
func NewProvider(ctx context.Context, collectorEndpoint, serviceName string) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(collectorEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// Tracer emits one span per workflow execution and one child span per node
// execution, entirely from the event stream.
type Tracer struct {
	tracer trace.Tracer

	mu           sync.Mutex
	execSpans    map[string]trace.Span
	execContexts map[string]context.Context
	nodeSpans    map[string]trace.Span
}

// NewTracer constructs a Tracer using the global TracerProvider (set by
// NewProvider) under the given instrumentation name.
func NewTracer(name string) *Tracer {
	return &Tracer{
		tracer:       otel.Tracer(name),
		execSpans:    make(map[string]trace.Span),
		execContexts: make(map[string]context.Context),
		nodeSpans:    make(map[string]trace.Span),
	}
}

// Attach subscribes a wildcard handler to bus, opening/closing spans as
// lifecycle events arrive.
func (t *Tracer) Attach(bus eventbus.Bus) {
	bus.Subscribe("*", func(ctx context.Context, evt eventbus.Event) error {
		t.observe(ctx, evt)
		return nil
	})
}

func (t *Tracer) observe(ctx context.Context, evt eventbus.Event) {
	switch e := evt.(type) {
	case eventbus.WorkflowStart:
		spanCtx, span := t.tracer.Start(ctx, "workflow.execute",
			trace.WithAttributes(
				attribute.String("blueprint_id", e.BlueprintID()),
				attribute.String("execution_id", e.ExecutionID()),
			))
		t.mu.Lock()
		t.execSpans[e.ExecutionID()] = span
		t.execContexts[e.ExecutionID()] = spanCtx
		t.mu.Unlock()

	case eventbus.WorkflowFinish:
		t.mu.Lock()
		span, ok := t.execSpans[e.ExecutionID()]
		delete(t.execSpans, e.ExecutionID())
		delete(t.execContexts, e.ExecutionID())
		t.mu.Unlock()
		if !ok {
			return
		}
		span.SetAttributes(attribute.String("status", e.Status))
		if len(e.Errors) > 0 {
			span.SetStatus(codes.Error, e.Errors[0])
		}
		span.End()

	case eventbus.NodeStart:
		parent := t.executionContext(e.ExecutionID())
		_, span := t.tracer.Start(parent, "node."+e.NodeID,
			trace.WithAttributes(
				attribute.String("node_id", e.NodeID),
				attribute.String("execution_id", e.ExecutionID()),
			))
		t.mu.Lock()
		t.nodeSpans[e.ExecutionID()+":"+e.NodeID] = span
		t.mu.Unlock()

	case eventbus.NodeFinish:
		t.endNodeSpan(e.ExecutionID(), e.NodeID, "")

	case eventbus.NodeError:
		t.endNodeSpan(e.ExecutionID(), e.NodeID, e.Error)
	}
}

func (t *Tracer) executionContext(executionID string) context.Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ctx, ok := t.execContexts[executionID]; ok {
		return ctx
	}
	return context.Background()
}

func (t *Tracer) endNodeSpan(executionID, nodeID, errMsg string) {
	key := executionID + ":" + nodeID
	t.mu.Lock()
	span, ok := t.nodeSpans[key]
	delete(t.nodeSpans, key)
	t.mu.Unlock()
	if !ok {
		return
	}
	if errMsg != "" {
		span.SetStatus(codes.Error, errMsg)
	}
	span.End()
}
