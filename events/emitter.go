package events

import "time"

// Emitter provides helpers for publishing runtime events with shared run context.
type Emitter struct {
	bus   *EventBus
	runID string
}

// NewEmitter creates a new event emitter scoped to a single pipeline run.
func NewEmitter(bus *EventBus, runID string) *Emitter {
	return &Emitter{
		bus:   bus,
		runID: runID,
	}
}

// emit publishes an event with shared context fields.
func (e *Emitter) emit(eventType EventType, data EventData) {
	if e == nil || e.bus == nil {
		return
	}

	event := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		RunID:     e.runID,
		Data:      data,
	}

	e.bus.Publish(event)
}

// PipelineStarted emits the pipeline.started event.
func (e *Emitter) PipelineStarted(stageCount int) {
	e.emit(EventPipelineStarted, PipelineStartedData{
		StageCount: stageCount,
	})
}

// PipelineCompleted emits the pipeline.completed event.
func (e *Emitter) PipelineCompleted(duration time.Duration, itemCount int) {
	e.emit(EventPipelineCompleted, PipelineCompletedData{
		Duration:  duration,
		ItemCount: itemCount,
	})
}

// PipelineFailed emits the pipeline.failed event.
func (e *Emitter) PipelineFailed(err error, duration time.Duration) {
	e.emit(EventPipelineFailed, PipelineFailedData{
		Error:    err,
		Duration: duration,
	})
}

// StageStarted emits the stage.started event.
func (e *Emitter) StageStarted(name, stageType string) {
	e.emit(EventStageStarted, StageCompletedData{
		Name:      name,
		StageType: stageType,
	})
}

// StageCompleted emits the stage.completed event.
func (e *Emitter) StageCompleted(name, stageType string, duration time.Duration) {
	e.emit(EventStageCompleted, StageCompletedData{
		Name:      name,
		StageType: stageType,
		Duration:  duration,
	})
}

// StageFailed emits the stage.failed event.
func (e *Emitter) StageFailed(name, stageType string, err error, duration time.Duration) {
	e.emit(EventStageFailed, StageFailedData{
		Name:      name,
		StageType: stageType,
		Duration:  duration,
		Error:     err,
	})
}

// ItemRetried emits the item.retried event.
func (e *Emitter) ItemRetried(stageName string, attempt int, delay time.Duration, cause error) {
	e.emit(EventItemRetried, ItemRetriedData{
		StageName: stageName,
		Attempt:   attempt,
		Delay:     delay,
		Error:     cause,
	})
}

// ItemDeadLettered emits the item.dead_lettered event.
func (e *Emitter) ItemDeadLettered(stageName string, attempts int, cause error) {
	e.emit(EventItemDeadLettered, ItemDeadLetteredData{
		StageName: stageName,
		Attempts:  attempts,
		Cause:     cause,
	})
}

// ItemRecovered emits the item.recovered event.
func (e *Emitter) ItemRecovered(stageName string, attempts int, cause error) {
	e.emit(EventItemRecovered, ItemRecoveredData{
		StageName: stageName,
		Attempts:  attempts,
		Cause:     cause,
	})
}

// RPCServerCall emits the rpc.server.call event.
func (e *Emitter) RPCServerCall(service, method, statusCode string, duration time.Duration) {
	e.emit(EventRPCServerCall, RPCCallData{
		Service:    service,
		Method:     method,
		StatusCode: statusCode,
		Duration:   duration,
	})
}

// RPCClientCall emits the rpc.client.call event.
func (e *Emitter) RPCClientCall(service, method, statusCode string, duration time.Duration) {
	e.emit(EventRPCClientCall, RPCCallData{
		Service:    service,
		Method:     method,
		StatusCode: statusCode,
		Duration:   duration,
	})
}

// BufferDepthChanged emits the buffer.depth_changed event.
func (e *Emitter) BufferDepthChanged(stepClass string, depth, capacity int) {
	e.emit(EventBufferDepthChanged, BufferDepthChangedData{
		StepClass: stepClass,
		Depth:     depth,
		Capacity:  capacity,
	})
}

// StartupReady emits the startup.ready event.
func (e *Emitter) StartupReady(waited time.Duration) {
	e.emit(EventStartupReady, StartupTimeoutData{
		Waited: waited,
	})
}

// StartupTimeout emits the startup.timeout event.
func (e *Emitter) StartupTimeout(pendingSteps []string, waited time.Duration) {
	e.emit(EventStartupTimeout, StartupTimeoutData{
		PendingSteps: pendingSteps,
		Waited:       waited,
	})
}
