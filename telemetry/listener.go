package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/streamforge/pipelinecore/events"
)

// spanEntry tracks an in-flight span and its context.
type spanEntry struct {
	span trace.Span
	ctx  context.Context //nolint:containedctx // needed to parent child spans
}

// pendingEnd buffers a span completion that arrived before the corresponding start.
// The EventBus dispatches each Publish() in a separate goroutine, so completion
// events can race ahead of start events.
type pendingEnd struct {
	errMsg string // empty means success
	attrs  []attribute.KeyValue
}

// OTelEventListener converts runtime events into OTel spans in real time.
// It implements the events.Listener function signature via its OnEvent method.
// It is safe for concurrent use and tolerates out-of-order event delivery.
type OTelEventListener struct {
	tracer trace.Tracer

	mu          sync.Mutex
	inflight    map[string]*spanEntry  // "pipeline:<runID>" or "step:<runID>:<name>" → span + ctx
	pendingEnds map[string]*pendingEnd // buffered completions for out-of-order delivery
}

// NewOTelEventListener creates a listener that creates OTel spans from runtime events.
func NewOTelEventListener(tracer trace.Tracer) *OTelEventListener {
	return &OTelEventListener{
		tracer:      tracer,
		inflight:    make(map[string]*spanEntry),
		pendingEnds: make(map[string]*pendingEnd),
	}
}

// OnEvent handles a single runtime event and creates/completes OTel spans accordingly.
// It is safe for concurrent use and can be passed to EventBus.SubscribeAll.
func (l *OTelEventListener) OnEvent(evt *events.Event) {
	//nolint:exhaustive // Only handling span-producing events
	switch evt.Type {
	case events.EventPipelineStarted:
		l.startPipeline(evt)
	case events.EventPipelineCompleted:
		l.completePipeline(evt)
	case events.EventPipelineFailed:
		l.failPipeline(evt)
	case events.EventStageStarted:
		l.startStage(evt)
	case events.EventStageCompleted:
		l.completeStage(evt)
	case events.EventStageFailed:
		l.failStage(evt)
	case events.EventRPCServerCall:
		l.recordRPCCall(evt, trace.SpanKindServer)
	case events.EventRPCClientCall:
		l.recordRPCCall(evt, trace.SpanKindClient)
	case events.EventItemRetried:
		l.recordItemRetried(evt)
	case events.EventItemDeadLettered:
		l.recordItemDeadLettered(evt)
	}
}

// pipelineCtx returns the context of the run's root span, for parenting step
// spans. Falls back to context.Background() if the run hasn't started yet.
func (l *OTelEventListener) pipelineCtx(runID string) context.Context {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.inflight["pipeline:"+runID]; ok {
		return entry.ctx
	}
	return context.Background()
}

// startSpan starts a span and stores it in inflight. If a completion was
// already buffered (out-of-order delivery), the span is immediately ended.
func (l *OTelEventListener) startSpan(
	parentCtx context.Context, key, name string, kind trace.SpanKind, attrs ...attribute.KeyValue,
) {
	ctx, span := l.tracer.Start(parentCtx, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)
	l.mu.Lock()
	pe, havePending := l.pendingEnds[key]
	if havePending {
		delete(l.pendingEnds, key)
	} else {
		l.inflight[key] = &spanEntry{span: span, ctx: ctx}
	}
	l.mu.Unlock()

	if havePending {
		span.SetAttributes(pe.attrs...)
		if pe.errMsg != "" {
			span.SetStatus(codes.Error, pe.errMsg)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// endSpan ends an inflight span and removes it from the map.
// If the span hasn't started yet (out-of-order delivery), the completion is
// buffered and will be applied when startSpan creates the span.
func (l *OTelEventListener) endSpan(key string, attrs ...attribute.KeyValue) {
	l.mu.Lock()
	entry, ok := l.inflight[key]
	if ok {
		delete(l.inflight, key)
	} else {
		l.pendingEnds[key] = &pendingEnd{attrs: attrs}
	}
	l.mu.Unlock()
	if !ok {
		return
	}
	entry.span.SetAttributes(attrs...)
	entry.span.SetStatus(codes.Ok, "")
	entry.span.End()
}

// failSpan ends an inflight span with an error status.
// If the span hasn't started yet (out-of-order delivery), the failure is
// buffered and will be applied when startSpan creates the span.
func (l *OTelEventListener) failSpan(key, errMsg string, attrs ...attribute.KeyValue) {
	l.mu.Lock()
	entry, ok := l.inflight[key]
	if ok {
		delete(l.inflight, key)
	} else {
		l.pendingEnds[key] = &pendingEnd{errMsg: errMsg, attrs: attrs}
	}
	l.mu.Unlock()
	if !ok {
		return
	}
	entry.span.SetAttributes(attrs...)
	entry.span.SetStatus(codes.Error, errMsg)
	entry.span.End()
}

// asPtr extracts event data as a pointer, handling both value and pointer types.
// The emitter may pass either T or *T depending on the event.
func asPtr[T any](data any) (*T, bool) {
	if p, ok := data.(*T); ok {
		return p, true
	}
	if v, ok := data.(T); ok {
		return &v, true
	}
	return nil, false
}

// --- Pipeline ---

func (l *OTelEventListener) startPipeline(evt *events.Event) {
	data, _ := asPtr[events.PipelineStartedData](evt.Data)
	attrs := []attribute.KeyValue{attribute.String("run.id", evt.RunID)}
	if data != nil {
		attrs = append(attrs, attribute.Int("pipeline.step_count", data.StageCount))
	}
	l.startSpan(context.Background(), "pipeline:"+evt.RunID, "pipeline.execute", trace.SpanKindInternal, attrs...)
}

func (l *OTelEventListener) completePipeline(evt *events.Event) {
	data, ok := asPtr[events.PipelineCompletedData](evt.Data)
	if !ok {
		return
	}
	l.endSpan("pipeline:"+evt.RunID,
		attribute.Int64("pipeline.duration_ms", data.Duration.Milliseconds()),
		attribute.Int("pipeline.item_count", data.ItemCount),
	)
}

func (l *OTelEventListener) failPipeline(evt *events.Event) {
	data, ok := asPtr[events.PipelineFailedData](evt.Data)
	if !ok {
		return
	}
	l.failSpan("pipeline:"+evt.RunID, data.Error.Error(),
		attribute.Int64("pipeline.duration_ms", data.Duration.Milliseconds()),
	)
}

// --- Step ---

func (l *OTelEventListener) startStage(evt *events.Event) {
	data, ok := asPtr[events.StageCompletedData](evt.Data)
	if !ok {
		return
	}
	key := "step:" + evt.RunID + ":" + data.Name
	parentCtx := l.pipelineCtx(evt.RunID)
	l.startSpan(parentCtx, key, "step."+data.Name, trace.SpanKindInternal,
		attribute.String("step.name", data.Name),
		attribute.String("step.shape", data.StageType),
	)
}

func (l *OTelEventListener) completeStage(evt *events.Event) {
	data, ok := asPtr[events.StageCompletedData](evt.Data)
	if !ok {
		return
	}
	l.endSpan("step:"+evt.RunID+":"+data.Name,
		attribute.Int64("step.duration_ms", data.Duration.Milliseconds()),
	)
}

func (l *OTelEventListener) failStage(evt *events.Event) {
	data, ok := asPtr[events.StageFailedData](evt.Data)
	if !ok {
		return
	}
	l.failSpan("step:"+evt.RunID+":"+data.Name, data.Error.Error(),
		attribute.Int64("step.duration_ms", data.Duration.Milliseconds()),
	)
}

// --- RPC ---

// recordRPCCall records a complete client or server remote call as a
// standalone span parented under the pipeline run, since the event fires
// once on completion rather than as separate start/end events.
func (l *OTelEventListener) recordRPCCall(evt *events.Event, kind trace.SpanKind) {
	data, ok := asPtr[events.RPCCallData](evt.Data)
	if !ok {
		return
	}
	name := "rpc.client." + data.Service + "/" + data.Method
	if kind == trace.SpanKindServer {
		name = "rpc.server." + data.Service + "/" + data.Method
	}

	parentCtx := l.pipelineCtx(evt.RunID)
	_, span := l.tracer.Start(parentCtx, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(
			attribute.String("rpc.system", "grpc"),
			attribute.String("rpc.service", data.Service),
			attribute.String("rpc.method", data.Method),
			attribute.String("rpc.status_code", data.StatusCode),
		),
	)
	if data.StatusCode == statusSuccess {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, data.StatusCode)
	}
	span.End()
}

// --- Item lifecycle ---

func (l *OTelEventListener) recordItemRetried(evt *events.Event) {
	data, ok := asPtr[events.ItemRetriedData](evt.Data)
	if !ok {
		return
	}
	l.addStepEvent(evt.RunID, data.StageName, "item.retried",
		attribute.Int("item.attempt", data.Attempt),
		attribute.Int64("item.delay_ms", data.Delay.Milliseconds()),
	)
}

func (l *OTelEventListener) recordItemDeadLettered(evt *events.Event) {
	data, ok := asPtr[events.ItemDeadLetteredData](evt.Data)
	if !ok {
		return
	}
	l.addStepEvent(evt.RunID, data.StageName, "item.dead_lettered",
		attribute.Int("item.attempts", data.Attempts),
	)
}

// addStepEvent attaches a span event to the named step's in-flight span,
// falling back to the pipeline root span if the step span isn't tracked.
func (l *OTelEventListener) addStepEvent(runID, stepName, name string, attrs ...attribute.KeyValue) {
	l.mu.Lock()
	entry, ok := l.inflight["step:"+runID+":"+stepName]
	if !ok {
		entry, ok = l.inflight["pipeline:"+runID]
	}
	l.mu.Unlock()
	if !ok {
		return
	}
	entry.span.AddEvent(name, trace.WithAttributes(attrs...))
}
