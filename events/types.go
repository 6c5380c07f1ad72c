// Package events provides a lightweight pub/sub event bus for runtime observability.
package events

import "time"

// EventType identifies the type of event emitted by the executor.
type EventType string

const (
	// EventPipelineStarted marks the start of a pipeline run.
	EventPipelineStarted EventType = "pipeline.started"
	// EventPipelineCompleted marks successful completion of a pipeline run.
	EventPipelineCompleted EventType = "pipeline.completed"
	// EventPipelineFailed marks terminal failure of a pipeline run.
	EventPipelineFailed EventType = "pipeline.failed"

	// EventStageStarted marks a stage beginning work on an item.
	EventStageStarted EventType = "stage.started"
	// EventStageCompleted marks a stage successfully emitting for an item.
	EventStageCompleted EventType = "stage.completed"
	// EventStageFailed marks a stage's per-item failure (before retry resolution).
	EventStageFailed EventType = "stage.failed"

	// EventItemRetried marks a retry attempt for a single item.
	EventItemRetried EventType = "item.retried"
	// EventItemDeadLettered marks an item handed to a dead-letter handler.
	EventItemDeadLettered EventType = "item.dead_lettered"
	// EventItemRecovered marks an item salvaged via recoverOnFailure pass-through.
	EventItemRecovered EventType = "item.recovered"

	// EventRPCServerCall marks a server adapter's RPC completion (success or failure).
	EventRPCServerCall EventType = "rpc.server.call"
	// EventRPCClientCall marks a client step's remote call completion.
	EventRPCClientCall EventType = "rpc.client.call"

	// EventBufferDepthChanged marks a backpressure buffer depth sample.
	EventBufferDepthChanged EventType = "buffer.depth_changed"

	// EventStartupReady marks all client steps reporting healthy.
	EventStartupReady EventType = "startup.ready"
	// EventStartupTimeout marks startup readiness deadline exceeded.
	EventStartupTimeout EventType = "startup.timeout"
)

// EventData is a marker interface for event payloads.
type EventData interface {
	eventData()
}

// Event represents a runtime event delivered to listeners.
type Event struct {
	Type      EventType
	Timestamp time.Time
	RunID     string
	Data      EventData
}

// baseEventData provides a shared marker implementation for all event payloads.
type baseEventData struct{}

func (baseEventData) eventData() {
	// marker method to satisfy EventData
}

// PipelineStartedData contains data for pipeline start events.
type PipelineStartedData struct {
	baseEventData
	StageCount int
}

// PipelineCompletedData contains data for pipeline completion events.
type PipelineCompletedData struct {
	baseEventData
	Duration   time.Duration
	ItemCount  int
}

// PipelineFailedData contains data for pipeline failure events.
type PipelineFailedData struct {
	baseEventData
	Error    error
	Duration time.Duration
}

// StageCompletedData contains data for stage completion events.
type StageCompletedData struct {
	baseEventData
	Name      string
	StageType string
	Duration  time.Duration
}

// StageFailedData contains data for stage failure events.
type StageFailedData struct {
	baseEventData
	Name      string
	StageType string
	Duration  time.Duration
	Error     error
}

// ItemRetriedData contains data for a single retry attempt.
type ItemRetriedData struct {
	baseEventData
	StageName string
	Attempt   int
	Delay     time.Duration
	Error     error
}

// ItemDeadLetteredData contains data for a dead-lettered item.
type ItemDeadLetteredData struct {
	baseEventData
	StageName string
	Attempts  int
	Cause     error
}

// ItemRecoveredData contains data for a pass-through recovery.
type ItemRecoveredData struct {
	baseEventData
	StageName string
	Attempts  int
	Cause     error
}

// RPCCallData contains data for a completed RPC call (server or client side).
type RPCCallData struct {
	baseEventData
	Service    string
	Method     string
	StatusCode string
	Duration   time.Duration
}

// BufferDepthChangedData contains a backpressure buffer depth sample.
type BufferDepthChangedData struct {
	baseEventData
	StepClass string
	Depth     int
	Capacity  int
}

// StartupTimeoutData contains data for a startup readiness timeout.
type StartupTimeoutData struct {
	baseEventData
	PendingSteps []string
	Waited       time.Duration
}
