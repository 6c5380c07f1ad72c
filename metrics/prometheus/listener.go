// Package prometheus exports the pipeline's stable RPC and buffer metrics.
package prometheus

import (
	"github.com/streamforge/pipelinecore/events"
)

// Status constants for metric labels.
const (
	statusSuccess = "success"
	statusError   = "error"
)

// MetricsListener records pipeline events as Prometheus metrics.
// It implements the events.Listener signature and should be registered
// with an EventBus using SubscribeAll.
type MetricsListener struct{}

// NewMetricsListener creates a new MetricsListener.
func NewMetricsListener() *MetricsListener {
	return &MetricsListener{}
}

// Handle processes an event and records relevant metrics.
// This method is designed to be used with EventBus.SubscribeAll.
func (l *MetricsListener) Handle(event *events.Event) {
	//exhaustive:ignore
	switch event.Type {
	case events.EventPipelineStarted:
		RecordPipelineStart()
	case events.EventPipelineCompleted:
		l.handlePipelineCompleted(event)
	case events.EventPipelineFailed:
		l.handlePipelineFailed(event)
	case events.EventItemRetried:
		l.handleItemRetried(event)
	case events.EventItemDeadLettered:
		l.handleItemDeadLettered(event)
	case events.EventRPCServerCall:
		l.handleRPCServerCall(event)
	case events.EventRPCClientCall:
		l.handleRPCClientCall(event)
	case events.EventBufferDepthChanged:
		l.handleBufferDepthChanged(event)
	default:
		// Ignore events that don't have metrics.
	}
}

func (l *MetricsListener) handlePipelineCompleted(event *events.Event) {
	if data, ok := event.Data.(events.PipelineCompletedData); ok {
		RecordPipelineEnd(statusSuccess, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handlePipelineFailed(event *events.Event) {
	if data, ok := event.Data.(events.PipelineFailedData); ok {
		RecordPipelineEnd(statusError, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleItemRetried(event *events.Event) {
	if data, ok := event.Data.(events.ItemRetriedData); ok {
		RecordItemRetry(data.StageName)
	}
}

func (l *MetricsListener) handleItemDeadLettered(event *events.Event) {
	if data, ok := event.Data.(events.ItemDeadLetteredData); ok {
		RecordItemDeadLettered(data.StageName)
	}
}

func (l *MetricsListener) handleRPCServerCall(event *events.Event) {
	if data, ok := event.Data.(events.RPCCallData); ok {
		RecordRPCServerCall(data.Service, data.Method, data.StatusCode, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleRPCClientCall(event *events.Event) {
	if data, ok := event.Data.(events.RPCCallData); ok {
		RecordRPCClientCall(data.Service, data.Method, data.StatusCode, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleBufferDepthChanged(event *events.Event) {
	if data, ok := event.Data.(events.BufferDepthChangedData); ok {
		SetBufferDepth(data.StepClass, data.Depth, data.Capacity)
	}
}

// Listener returns an events.Listener function that can be registered with an EventBus.
func (l *MetricsListener) Listener() events.Listener {
	return l.Handle
}
