package stage

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrPipelineShuttingDown is returned when attempting to execute a pipeline that is shutting down.
	ErrPipelineShuttingDown = errors.New("pipeline is shutting down")

	// ErrShutdownTimeout is returned when pipeline shutdown times out.
	ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

	// ErrInvalidPipeline is returned when building an invalid pipeline.
	ErrInvalidPipeline = errors.New("invalid pipeline configuration")

	// ErrStepNotFound is returned when a referenced step doesn't exist.
	ErrStepNotFound = errors.New("step not found")

	// ErrDuplicateStepName is returned when multiple steps have the same name.
	ErrDuplicateStepName = errors.New("duplicate step name")

	// ErrNoSteps is returned when trying to build a pipeline with no steps.
	ErrNoSteps = errors.New("pipeline must have at least one step")

	// ErrShapeMismatch is returned when adjacent steps are not shape-compatible.
	ErrShapeMismatch = errors.New("adjacent steps are not shape-compatible")

	// ErrCyclicDependency is returned when the step DAG contains a cycle.
	ErrCyclicDependency = errors.New("pipeline contains a cyclic dependency")

	// ErrInvalidChannelBufferSize is returned for invalid buffer size.
	ErrInvalidChannelBufferSize = errors.New("channel buffer size must be non-negative")

	// ErrInvalidMaxConcurrentPipelines is returned for invalid max concurrent pipelines.
	ErrInvalidMaxConcurrentPipelines = errors.New("max concurrent pipelines must be non-negative")

	// ErrInvalidExecutionTimeout is returned for invalid execution timeout.
	ErrInvalidExecutionTimeout = errors.New("execution timeout must be non-negative")

	// ErrInvalidGracefulShutdownTimeout is returned for invalid graceful shutdown timeout.
	ErrInvalidGracefulShutdownTimeout = errors.New("graceful shutdown timeout must be non-negative")
)

// ConfigurationError is fatal at pipeline assembly time: a bad aspect
// target, a missing mapper, a shape mismatch, a missing
// pluginImplementationClass, or an unknown step reference.
type ConfigurationError struct {
	Reason string
	Err    error
}

// Error returns the error message.
func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(reason string, err error) *ConfigurationError {
	return &ConfigurationError{Reason: reason, Err: err}
}

// StartupTimeoutError is fatal: a remote dependency failed to report healthy
// within the startup deadline.
type StartupTimeoutError struct {
	PendingSteps []string
	Waited       error
}

// Error returns the error message.
func (e *StartupTimeoutError) Error() string {
	return fmt.Sprintf("startup timeout: steps not ready: %v", e.PendingSteps)
}

// TransientItemFailure is a per-item failure eligible for retry. It is
// recovered locally if retries succeed, passed through if RecoverOnFailure,
// dead-lettered if a handler is defined, otherwise escalates to a
// PipelineFailure.
type TransientItemFailure struct {
	StepName string
	Attempt  int
	Err      error
}

// Error returns the error message.
func (e *TransientItemFailure) Error() string {
	return fmt.Sprintf("step %q failed on attempt %d: %v", e.StepName, e.Attempt, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransientItemFailure) Unwrap() error {
	return e.Err
}

// PipelineFailure is a terminal stream failure: it propagates downstream
// unless a stage recovers, and the executor terminates the run and surfaces
// the cause to the caller.
type PipelineFailure struct {
	StepName string
	Err      error
}

// Error returns the error message.
func (e *PipelineFailure) Error() string {
	if e.StepName != "" {
		return fmt.Sprintf("pipeline failed at step %q: %v", e.StepName, e.Err)
	}
	return fmt.Sprintf("pipeline failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *PipelineFailure) Unwrap() error {
	return e.Err
}

// CancellationRequested is ordinary termination, not an error condition;
// finalisers still run. It satisfies the error interface so it can be
// returned and inspected via errors.Is, but callers should not treat it as
// a failure.
var CancellationRequested = errors.New("cancellation requested")

// TransportStatusCode mirrors the RPC status codes the server adapters map
// user-step failures onto.
type TransportStatusCode string

// TransportStatusInternal is the wire form of a user-step failure: the
// adapter converts the cause's message into the status's description and
// attaches the cause.
const TransportStatusInternal TransportStatusCode = "INTERNAL"

// TransportStatus is the wire-level error an adapter returns to a remote
// caller, preserving the original cause for local inspection.
type TransportStatus struct {
	Code TransportStatusCode
	Err  error
}

// Error returns the error message.
func (e *TransportStatus) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportStatus) Unwrap() error {
	return e.Err
}

// NewTransportStatus wraps err as an INTERNAL transport status.
func NewTransportStatus(err error) *TransportStatus {
	return &TransportStatus{Code: TransportStatusInternal, Err: err}
}

// StepError wraps an error with step information.
type StepError struct {
	StepName string
	Shape    Shape
	Err      error
}

// Error returns the error message.
func (e *StepError) Error() string {
	return fmt.Sprintf("step '%s' (%s) failed: %v", e.StepName, e.Shape, e.Err)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error {
	return e.Err
}

// NewStepError creates a new StepError.
func NewStepError(stepName string, shape Shape, err error) *StepError {
	return &StepError{
		StepName: stepName,
		Shape:    shape,
		Err:      err,
	}
}
