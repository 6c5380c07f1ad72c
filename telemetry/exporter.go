// Package telemetry provides OpenTelemetry export for pipeline run recordings.
// This enables exporting runtime events as distributed traces to observability platforms.
package telemetry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/streamforge/pipelinecore/events"
)

const statusSuccess = "success"

// Exporter exports pipeline run events to an observability backend.
type Exporter interface {
	// Export sends events to the backend.
	Export(ctx context.Context, spans []*Span) error

	// Shutdown performs cleanup and flushes any pending data.
	Shutdown(ctx context.Context) error
}

// Span represents a trace span in OpenTelemetry format.
type Span struct {
	// TraceID is the unique identifier for the trace (16 bytes, hex-encoded).
	TraceID string `json:"traceId"`
	// SpanID is the unique identifier for this span (8 bytes, hex-encoded).
	SpanID string `json:"spanId"`
	// ParentSpanID is the ID of the parent span (empty for root spans).
	ParentSpanID string `json:"parentSpanId,omitempty"`
	// Name is the operation name.
	Name string `json:"name"`
	// Kind is the span kind (client, server, producer, consumer, internal).
	Kind SpanKind `json:"kind"`
	// StartTime is when the span started.
	StartTime time.Time `json:"startTimeUnixNano"`
	// EndTime is when the span ended.
	EndTime time.Time `json:"endTimeUnixNano"`
	// Attributes are key-value pairs associated with the span.
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	// Status is the span status.
	Status *SpanStatus `json:"status,omitempty"`
	// Events are timestamped events within the span.
	Events []*SpanEvent `json:"events,omitempty"`
}

// SpanKind represents the type of span.
type SpanKind int

// Span kinds.
const (
	SpanKindUnspecified SpanKind = 0
	SpanKindInternal    SpanKind = 1
	SpanKindServer      SpanKind = 2
	SpanKindClient      SpanKind = 3
	SpanKindProducer    SpanKind = 4
	SpanKindConsumer    SpanKind = 5
)

// SpanStatus represents the status of a span.
type SpanStatus struct {
	// Code is the status code (0=Unset, 1=Ok, 2=Error).
	Code StatusCode `json:"code"`
	// Message is the status message.
	Message string `json:"message,omitempty"`
}

// StatusCode represents the status of a span.
type StatusCode int

// Status codes.
const (
	StatusCodeUnset StatusCode = 0
	StatusCodeOk    StatusCode = 1
	StatusCodeError StatusCode = 2
)

// SpanEvent represents an event within a span.
type SpanEvent struct {
	// Name is the event name.
	Name string `json:"name"`
	// Time is when the event occurred.
	Time time.Time `json:"timeUnixNano"`
	// Attributes are key-value pairs associated with the event.
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Resource represents the entity producing telemetry.
type Resource struct {
	// Attributes are key-value pairs describing the resource.
	Attributes map[string]interface{} `json:"attributes"`
}

// DefaultResource returns a default resource identifying this runtime.
func DefaultResource() *Resource {
	return &Resource{
		Attributes: map[string]interface{}{
			"service.name":  "pipelinecore",
			"telemetry.sdk": "pipelinecore-telemetry",
		},
	}
}

// ResourceWithRunID returns a default resource with the run.id attribute set.
func ResourceWithRunID(runID string) *Resource {
	r := DefaultResource()
	r.Attributes["run.id"] = runID
	return r
}

// EventConverter converts runtime events to OTLP spans.
type EventConverter struct {
	// Resource is the resource to attach to spans.
	Resource *Resource
}

// NewEventConverter creates a new event converter.
func NewEventConverter(resource *Resource) *EventConverter {
	if resource == nil {
		resource = DefaultResource()
	}
	return &EventConverter{Resource: resource}
}

// ConvertRun converts a single pipeline run's events to spans.
// The run becomes the root span, with steps and remote calls as child spans.
func (c *EventConverter) ConvertRun(runID string, runEvents []events.Event) ([]*Span, error) {
	if len(runEvents) == 0 {
		return nil, nil
	}
	traceID := generateTraceID(runID)
	return c.buildTrace(runID, runEvents, traceID, "")
}

// convertEvent converts a single event to a span or updates an existing span.
func (c *EventConverter) convertEvent(
	traceID, parentSpanID string, evt *events.Event, spanStack map[string]*Span,
) *Span {
	//nolint:exhaustive // Only handling span-producing events, others are ignored via default
	switch evt.Type {
	case events.EventPipelineStarted:
		return c.createPipelineSpan(traceID, parentSpanID, evt, spanStack)
	case events.EventPipelineCompleted, events.EventPipelineFailed:
		return c.completePipelineSpan(evt, spanStack)
	case events.EventStageStarted:
		return c.createStageSpan(traceID, parentSpanID, evt, spanStack)
	case events.EventStageCompleted, events.EventStageFailed:
		return c.completeStageSpan(evt, spanStack)
	case events.EventRPCServerCall:
		return c.createRPCSpan(traceID, parentSpanID, evt, SpanKindServer)
	case events.EventRPCClientCall:
		return c.createRPCSpan(traceID, parentSpanID, evt, SpanKindClient)
	case events.EventItemRetried:
		c.recordItemRetried(evt, spanStack)
		return nil
	case events.EventItemDeadLettered:
		c.recordItemDeadLettered(evt, spanStack)
		return nil
	case events.EventBufferDepthChanged:
		return nil
	default:
		return nil
	}
}

func (c *EventConverter) createPipelineSpan(
	traceID, parentSpanID string, evt *events.Event, spanStack map[string]*Span,
) *Span {
	spanID := generateSpanID(evt.RunID + ":pipeline")
	span := &Span{
		TraceID:      traceID,
		SpanID:       spanID,
		ParentSpanID: parentSpanID,
		Name:         "pipeline.execute",
		Kind:         SpanKindInternal,
		StartTime:    evt.Timestamp,
		EndTime:      evt.Timestamp, // Updated on completion
		Attributes: map[string]interface{}{
			"run.id": evt.RunID,
		},
	}
	if data, ok := evt.Data.(events.PipelineStartedData); ok {
		span.Attributes["pipeline.step_count"] = data.StageCount
	}
	spanStack["pipeline:"+evt.RunID] = span
	return nil // Don't return until completed
}

func (c *EventConverter) completePipelineSpan(evt *events.Event, spanStack map[string]*Span) *Span {
	key := "pipeline:" + evt.RunID
	span, ok := spanStack[key]
	if !ok {
		return nil
	}
	delete(spanStack, key)

	span.EndTime = evt.Timestamp

	switch data := evt.Data.(type) {
	case events.PipelineCompletedData:
		span.Attributes["pipeline.duration_ms"] = data.Duration.Milliseconds()
		span.Attributes["pipeline.item_count"] = data.ItemCount
		span.Status = &SpanStatus{Code: StatusCodeOk}
	case events.PipelineFailedData:
		span.Attributes["pipeline.duration_ms"] = data.Duration.Milliseconds()
		span.Status = &SpanStatus{
			Code:    StatusCodeError,
			Message: data.Error.Error(),
		}
	}

	return span
}

func (c *EventConverter) createStageSpan(
	traceID, parentSpanID string, evt *events.Event, spanStack map[string]*Span,
) *Span {
	data, ok := evt.Data.(events.StageCompletedData)
	if !ok {
		return nil
	}

	spanID := generateSpanID(evt.RunID + ":step:" + data.Name)
	span := &Span{
		TraceID:      traceID,
		SpanID:       spanID,
		ParentSpanID: parentSpanID,
		Name:         "step." + data.Name,
		Kind:         SpanKindInternal,
		StartTime:    evt.Timestamp,
		EndTime:      evt.Timestamp,
		Attributes: map[string]interface{}{
			"step.name":  data.Name,
			"step.shape": data.StageType,
		},
	}
	spanStack["step:"+evt.RunID+":"+data.Name] = span
	return nil
}

func (c *EventConverter) completeStageSpan(evt *events.Event, spanStack map[string]*Span) *Span {
	var name string
	switch data := evt.Data.(type) {
	case events.StageCompletedData:
		name = data.Name
	case events.StageFailedData:
		name = data.Name
	default:
		return nil
	}

	key := "step:" + evt.RunID + ":" + name
	span, ok := spanStack[key]
	if !ok {
		return nil
	}
	delete(spanStack, key)

	span.EndTime = evt.Timestamp

	switch data := evt.Data.(type) {
	case events.StageCompletedData:
		span.Attributes["step.duration_ms"] = data.Duration.Milliseconds()
		span.Status = &SpanStatus{Code: StatusCodeOk}
	case events.StageFailedData:
		span.Attributes["step.duration_ms"] = data.Duration.Milliseconds()
		span.Status = &SpanStatus{
			Code:    StatusCodeError,
			Message: data.Error.Error(),
		}
	}

	return span
}

// createRPCSpan builds a complete (already-finished) span for a client or
// server remote call -- these events fire once on completion, unlike
// pipeline/step events which fire on start and end separately.
func (c *EventConverter) createRPCSpan(traceID, parentSpanID string, evt *events.Event, kind SpanKind) *Span {
	data, ok := evt.Data.(events.RPCCallData)
	if !ok {
		return nil
	}

	name := "rpc.client." + data.Service + "/" + data.Method
	if kind == SpanKindServer {
		name = "rpc.server." + data.Service + "/" + data.Method
	}

	span := &Span{
		TraceID:      traceID,
		SpanID:       generateSpanID(evt.RunID + ":" + name + ":" + evt.Timestamp.String()),
		ParentSpanID: parentSpanID,
		Name:         name,
		Kind:         kind,
		StartTime:    evt.Timestamp.Add(-data.Duration),
		EndTime:      evt.Timestamp,
		Attributes: map[string]interface{}{
			"rpc.system":      "grpc",
			"rpc.service":     data.Service,
			"rpc.method":      data.Method,
			"rpc.status_code": data.StatusCode,
		},
	}
	if data.StatusCode == statusSuccess {
		span.Status = &SpanStatus{Code: StatusCodeOk}
	} else {
		span.Status = &SpanStatus{Code: StatusCodeError, Message: data.StatusCode}
	}
	return span
}

func (c *EventConverter) recordItemRetried(evt *events.Event, spanStack map[string]*Span) {
	data, ok := evt.Data.(events.ItemRetriedData)
	if !ok {
		return
	}
	target := spanStack["step:"+evt.RunID+":"+data.StageName]
	if target == nil {
		target = spanStack["pipeline:"+evt.RunID]
	}
	if target == nil {
		return
	}
	target.Events = append(target.Events, &SpanEvent{
		Name: "item.retried",
		Time: evt.Timestamp,
		Attributes: map[string]interface{}{
			"item.attempt":  data.Attempt,
			"item.delay_ms": data.Delay.Milliseconds(),
		},
	})
}

func (c *EventConverter) recordItemDeadLettered(evt *events.Event, spanStack map[string]*Span) {
	data, ok := evt.Data.(events.ItemDeadLetteredData)
	if !ok {
		return
	}
	target := spanStack["step:"+evt.RunID+":"+data.StageName]
	if target == nil {
		target = spanStack["pipeline:"+evt.RunID]
	}
	if target == nil {
		return
	}
	target.Events = append(target.Events, &SpanEvent{
		Name: "item.dead_lettered",
		Time: evt.Timestamp,
		Attributes: map[string]interface{}{
			"item.attempts": data.Attempts,
		},
	})
}

// ConvertRunWithParent converts a run's events to spans, using the provided
// trace context as the parent trace instead of generating a fresh one from
// run ID. If traceCtx is nil or has an empty Traceparent, it falls back to
// ConvertRun behavior.
func (c *EventConverter) ConvertRunWithParent(
	runID string, runEvents []events.Event, traceCtx *TraceContext,
) ([]*Span, error) {
	if traceCtx == nil || traceCtx.Traceparent == "" {
		return c.ConvertRun(runID, runEvents)
	}

	parentTraceID, parentSpanID, ok := parseTraceparent(traceCtx.Traceparent)
	if !ok {
		return c.ConvertRun(runID, runEvents)
	}

	if len(runEvents) == 0 {
		return nil, nil
	}

	return c.buildTrace(runID, runEvents, parentTraceID, parentSpanID)
}

// buildTrace creates the root run span and converts all events into child spans.
// parentSpanID is set on the root span when propagating an inbound trace context.
func (c *EventConverter) buildTrace(
	runID string, runEvents []events.Event, traceID, parentSpanID string,
) ([]*Span, error) {
	rootSpanID := generateSpanID(runID + ":root")

	var startTime, endTime time.Time
	for _, evt := range runEvents {
		if startTime.IsZero() || evt.Timestamp.Before(startTime) {
			startTime = evt.Timestamp
		}
		if endTime.IsZero() || evt.Timestamp.After(endTime) {
			endTime = evt.Timestamp
		}
	}

	rootSpan := &Span{
		TraceID:      traceID,
		SpanID:       rootSpanID,
		ParentSpanID: parentSpanID,
		Name:         "run",
		Kind:         SpanKindServer,
		StartTime:    startTime,
		EndTime:      endTime,
		Attributes: map[string]interface{}{
			"run.id": runID,
		},
		Status: &SpanStatus{Code: StatusCodeOk},
	}

	spans := []*Span{rootSpan}
	spanStack := make(map[string]*Span)
	spanStack["root"] = rootSpan

	for i := range runEvents {
		span := c.convertEvent(traceID, rootSpanID, &runEvents[i], spanStack)
		if span != nil {
			spans = append(spans, span)
		}
	}

	return spans, nil
}

// parseTraceparent extracts trace ID and span ID from a W3C traceparent header.
// Format: version-trace_id-parent_id-trace_flags (e.g., 00-<32 hex>-<16 hex>-<2 hex>).
func parseTraceparent(tp string) (traceID, spanID string, ok bool) {
	if !traceparentRe.MatchString(tp) {
		return "", "", false
	}
	// 00-<32 hex traceID>-<16 hex spanID>-<2 hex flags>
	traceID = tp[3:35]
	spanID = tp[36:52]
	return traceID, spanID, true
}

// generateTraceID generates a 16-byte trace ID from a string.
func generateTraceID(s string) string {
	// Use first 16 bytes of SHA256 hash
	hash := sha256Sum(s)
	return hex.EncodeToString(hash[:16])
}

// generateSpanID generates an 8-byte span ID from a string.
func generateSpanID(s string) string {
	// Use first 8 bytes of SHA256 hash
	hash := sha256Sum(s)
	return hex.EncodeToString(hash[:8])
}

// sha256Sum computes SHA256 hash of a string.
func sha256Sum(s string) [32]byte {
	return sha256.Sum256([]byte(s))
}
