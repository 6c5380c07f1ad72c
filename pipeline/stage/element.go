// Package stage provides the reactive streaming architecture for pipeline execution.
package stage

import (
	"time"

	"github.com/google/uuid"
)

// StreamElement is the unit of data flowing through the pipeline.
// A single element carries at most one domain payload plus the metadata the
// executor and telemetry surface need to track it across stage boundaries.
type StreamElement struct {
	// Payload is the domain value carried by this element. It is nil for
	// pure control elements (end-of-stream, error).
	Payload any

	// Sequence is a monotonic per-run sequence number, used by the reorder
	// buffer to restore input order for STRICT_ADVISED/STRICT_REQUIRED steps.
	Sequence int64

	// Timestamp is when the element was created.
	Timestamp time.Time

	// Source is the name of the step that produced this element.
	Source string

	// Priority is the scheduling priority (for QoS under parallel dispatch).
	Priority Priority

	// Metadata carries side-channel data between stages (trace IDs, cache
	// keys, transport status codes).
	Metadata map[string]interface{}

	// EndOfStream marks the terminal element of a stream; no more elements
	// follow it.
	EndOfStream bool

	// Error carries a per-item failure. The retry/dead-letter engine
	// inspects this field before it reaches downstream stages.
	Error error
}

// Priority defines the scheduling priority for stream elements under
// parallel dispatch. Higher priority elements are dispatched first when
// the parallelism policy allows reordering.
type Priority int

const (
	// PriorityLow is for background or best-effort items.
	PriorityLow Priority = iota
	// PriorityNormal is the default priority for most elements.
	PriorityNormal
	// PriorityHigh is for latency-sensitive items.
	PriorityHigh
	// PriorityCritical is for control signals, errors, and terminal items.
	PriorityCritical
)

// NewElement creates a new StreamElement carrying the given payload.
func NewElement(payload any) StreamElement {
	return StreamElement{
		Payload:   payload,
		Timestamp: time.Now(),
		Priority:  PriorityNormal,
		Metadata:  make(map[string]interface{}),
	}
}

// NewErrorElement creates a new StreamElement carrying a per-item failure.
func NewErrorElement(err error) StreamElement {
	return StreamElement{
		Error:     err,
		Timestamp: time.Now(),
		Priority:  PriorityCritical,
		Metadata:  make(map[string]interface{}),
	}
}

// NewEndOfStreamElement creates a new StreamElement marking end of stream.
func NewEndOfStreamElement() StreamElement {
	return StreamElement{
		EndOfStream: true,
		Timestamp:   time.Now(),
		Priority:    PriorityCritical,
		Metadata:    make(map[string]interface{}),
	}
}

// IsEmpty returns true if the element contains no payload and no control signal.
func (e *StreamElement) IsEmpty() bool {
	return e.Payload == nil && !e.EndOfStream && e.Error == nil
}

// HasContent returns true if the element carries a domain payload.
func (e *StreamElement) HasContent() bool {
	return e.Payload != nil
}

// IsControl returns true if the element is a control signal (error or end-of-stream).
func (e *StreamElement) IsControl() bool {
	return e.Error != nil || e.EndOfStream
}

// WithSource sets the source step name for this element.
func (e *StreamElement) WithSource(source string) *StreamElement {
	e.Source = source
	return e
}

// WithPriority sets the priority for this element.
func (e *StreamElement) WithPriority(priority Priority) *StreamElement {
	e.Priority = priority
	return e
}

// WithSequence sets the sequence number for this element.
func (e *StreamElement) WithSequence(seq int64) *StreamElement {
	e.Sequence = seq
	return e
}

// WithMetadata adds metadata to this element.
func (e *StreamElement) WithMetadata(key string, value interface{}) *StreamElement {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// GetMetadata retrieves metadata by key, returning nil if not found.
func (e *StreamElement) GetMetadata(key string) interface{} {
	if e.Metadata == nil {
		return nil
	}
	return e.Metadata[key]
}

// NewRunID generates a fresh identifier for a pipeline run.
func NewRunID() string {
	return uuid.NewString()
}
