package stage

import (
	"context"
)

const (
	unknownType = "unknown"
)

// Shape is one of the four streaming cardinalities a Step can declare.
//
//nolint:revive // Intentionally named Shape for clarity at call sites.
type Shape int

const (
	// ShapeUnaryUnary takes a single value and produces a single asynchronous value.
	ShapeUnaryUnary Shape = iota
	// ShapeUnaryStreaming takes a single value and produces an async sequence (fan-out/expansion).
	ShapeUnaryStreaming
	// ShapeStreamingUnary takes an async sequence and produces a single async value (reduction).
	ShapeStreamingUnary
	// ShapeStreamingStreaming takes an async sequence and produces an async sequence.
	ShapeStreamingStreaming
)

// String returns the string representation of the shape.
func (s Shape) String() string {
	switch s {
	case ShapeUnaryUnary:
		return "unary_unary"
	case ShapeUnaryStreaming:
		return "unary_streaming"
	case ShapeStreamingUnary:
		return "streaming_unary"
	case ShapeStreamingStreaming:
		return "streaming_streaming"
	default:
		return unknownType
	}
}

// InputIsStream reports whether this shape consumes an async sequence.
func (s Shape) InputIsStream() bool {
	return s == ShapeStreamingUnary || s == ShapeStreamingStreaming
}

// OutputIsStream reports whether this shape produces an async sequence.
func (s Shape) OutputIsStream() bool {
	return s == ShapeUnaryStreaming || s == ShapeStreamingStreaming
}

// ExecutionMode hints how a step should be dispatched.
type ExecutionMode int

const (
	// ExecutionModeDefault dispatches the step on a regular worker-pool goroutine.
	ExecutionModeDefault ExecutionMode = iota
	// ExecutionModeVirtualThreads dispatches the step on a lightweight, cheaply-spawned goroutine
	// per invocation -- appropriate for steps that block on I/O far more than they compute.
	ExecutionModeVirtualThreads
)

// Role labels a step for code-generation purposes. The executor treats every
// role as an interchangeable black-box function; only the transport layer
// cares about the distinction.
type Role int

const (
	// RolePipelineServer is a step invoked in-process as part of this pipeline.
	RolePipelineServer Role = iota
	// RoleOrchestratorClient is a step that calls out to the orchestrator's own exposed endpoint.
	RoleOrchestratorClient
	// RolePluginServer is a step implemented by a plugin, invoked in-process.
	RolePluginServer
	// RolePluginClient is a step that calls a remote plugin implementation.
	RolePluginClient
	// RoleRESTServer is a step exposed as a REST resource.
	RoleRESTServer
)

// Ordering declares how strictly a step's output order must track its input order.
type Ordering int

const (
	// OrderingRelaxed allows outputs to be reordered relative to inputs.
	OrderingRelaxed Ordering = iota
	// OrderingStrictAdvised prefers order preservation; parallel dispatch is allowed with a warning.
	OrderingStrictAdvised
	// OrderingStrictRequired mandates order preservation; parallel dispatch is a build-time error.
	OrderingStrictRequired
)

// ThreadSafety declares whether a step may be invoked concurrently on distinct items.
type ThreadSafety int

const (
	// ThreadSafetySafe means the step may be invoked concurrently.
	ThreadSafetySafe ThreadSafety = iota
	// ThreadSafetyUnsafe means the step must be serialized onto a single worker.
	ThreadSafetyUnsafe
)

func (o Ordering) String() string {
	switch o {
	case OrderingRelaxed:
		return "relaxed"
	case OrderingStrictAdvised:
		return "strict_advised"
	case OrderingStrictRequired:
		return "strict_required"
	default:
		return "unknown"
	}
}

func (t ThreadSafety) String() string {
	switch t {
	case ThreadSafetySafe:
		return "safe"
	case ThreadSafetyUnsafe:
		return "unsafe"
	default:
		return "unknown"
	}
}

// Step is the atomic processing unit of a pipeline. Implementations read from
// an input channel, apply their shape's contract, and write to an output
// channel. The step MUST close output when done (or when input closes).
type Step interface {
	// Name returns a unique identifier for this step within a pipeline.
	Name() string

	// Shape returns the step's streaming cardinality.
	Shape() Shape

	// Process reads from input, processes elements, and writes to output.
	// The step MUST close output when done (or when input closes).
	Process(ctx context.Context, input <-chan StreamElement, output chan<- StreamElement) error
}

// DeadLetterHandler is invoked with a failed item and cause once the retry
// engine exhausts retryLimit for a step. It may return a recovered value to
// emit downstream, or a nil value with the original cause to let the
// pipeline escalate to PipelineFailure.
type DeadLetterHandler func(ctx context.Context, failedItem StreamElement, cause error) (StreamElement, error)

// Declaration is the static, code-generation-facing description of a step:
// the attributes that don't change once the pipeline is assembled.
type Declaration struct {
	Name              string
	Order             int
	Shape             Shape
	ExecutionMode     ExecutionMode
	Role              Role
	Ordering          Ordering
	ThreadSafety      ThreadSafety
	SideEffect        bool
	CacheKeyGenerator string
}

// BaseStep provides common functionality for Step implementations. Steps can
// embed this to reduce boilerplate.
type BaseStep struct {
	decl        Declaration
	config      StepConfig
	deadLetter  DeadLetterHandler
	initialized bool
}

// NewBaseStep creates a new BaseStep with the given declaration.
func NewBaseStep(decl Declaration) BaseStep {
	return BaseStep{
		decl:   decl,
		config: DefaultStepConfig(),
	}
}

// Name returns the step name.
func (b *BaseStep) Name() string {
	return b.decl.Name
}

// Shape returns the step's declared shape.
func (b *BaseStep) Shape() Shape {
	return b.decl.Shape
}

// Declaration returns the step's static declaration.
func (b *BaseStep) Declaration() Declaration {
	return b.decl
}

// Config returns the step's current effective configuration.
func (b *BaseStep) Config() StepConfig {
	return b.config
}

// InitialiseWithConfig applies cfg once before the first invocation, honoring
// manual-override precedence: fields the step owner explicitly set take
// priority over incoming process-wide defaults on every re-initialisation.
func (b *BaseStep) InitialiseWithConfig(cfg StepConfig) {
	b.config = b.config.overlay(cfg)
	b.initialized = true
}

// SetDeadLetter registers the terminal-per-item handler invoked when retries
// are exhausted.
func (b *BaseStep) SetDeadLetter(h DeadLetterHandler) {
	b.deadLetter = h
}

// DeadLetter invokes the registered dead-letter handler, if any.
func (b *BaseStep) DeadLetter(
	ctx context.Context, failedItem StreamElement, cause error,
) (StreamElement, error, bool) {
	if b.deadLetter == nil {
		return StreamElement{}, nil, false
	}
	elem, err := b.deadLetter(ctx, failedItem, cause)
	return elem, err, true
}

// StepFunc is a functional adapter that allows using a function as a Step.
//
//nolint:revive // Intentionally named StepFunc for clarity.
type StepFunc struct {
	BaseStep
	processFunc func(context.Context, <-chan StreamElement, chan<- StreamElement) error
}

// NewStepFunc creates a new functional step.
//
//nolint:lll // Channel signature cannot be shortened.
func NewStepFunc(
	decl Declaration, fn func(context.Context, <-chan StreamElement, chan<- StreamElement) error,
) *StepFunc {
	return &StepFunc{
		BaseStep:    NewBaseStep(decl),
		processFunc: fn,
	}
}

// Process executes the step function.
func (sf *StepFunc) Process(ctx context.Context, input <-chan StreamElement, output chan<- StreamElement) error {
	return sf.processFunc(ctx, input, output)
}

// PassthroughStep is a simple step that passes all elements through unchanged.
// It is the shape of every synthetic side-effect step produced by aspect
// expansion: UNARY_UNARY, side-effect, identity on the value stream.
type PassthroughStep struct {
	BaseStep
	onElement func(StreamElement)
}

// NewPassthroughStep creates a new passthrough step. If onElement is non-nil
// it is invoked for each element's side effect (observation, cache lookup)
// without altering what is emitted downstream.
func NewPassthroughStep(name string, onElement func(StreamElement)) *PassthroughStep {
	decl := Declaration{
		Name:       name,
		Shape:      ShapeUnaryUnary,
		SideEffect: true,
	}
	return &PassthroughStep{
		BaseStep:  NewBaseStep(decl),
		onElement: onElement,
	}
}

// Process passes all elements through unchanged, invoking the side-effect
// callback (if any) for each one.
func (ps *PassthroughStep) Process(ctx context.Context, input <-chan StreamElement, output chan<- StreamElement) error {
	defer close(output)

	for elem := range input {
		if ps.onElement != nil {
			ps.onElement(elem)
		}

		select {
		case output <- elem:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// FilterStep filters elements based on a predicate function.
type FilterStep struct {
	BaseStep
	predicate func(StreamElement) bool
}

// NewFilterStep creates a new filter step.
func NewFilterStep(name string, predicate func(StreamElement) bool) *FilterStep {
	decl := Declaration{Name: name, Shape: ShapeUnaryUnary}
	return &FilterStep{
		BaseStep:  NewBaseStep(decl),
		predicate: predicate,
	}
}

// Process filters elements based on the predicate.
func (fs *FilterStep) Process(ctx context.Context, input <-chan StreamElement, output chan<- StreamElement) error {
	defer close(output)

	for elem := range input {
		if fs.predicate(elem) {
			select {
			case output <- elem:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return nil
}

// MapStep transforms elements using a mapping function.
type MapStep struct {
	BaseStep
	mapFunc func(StreamElement) (StreamElement, error)
}

// NewMapStep creates a new map step.
func NewMapStep(name string, mapFunc func(StreamElement) (StreamElement, error)) *MapStep {
	decl := Declaration{Name: name, Shape: ShapeUnaryUnary}
	return &MapStep{
		BaseStep: NewBaseStep(decl),
		mapFunc:  mapFunc,
	}
}

// Process transforms each element using the map function.
func (ms *MapStep) Process(ctx context.Context, input <-chan StreamElement, output chan<- StreamElement) error {
	defer close(output)

	for elem := range input {
		transformed, err := ms.mapFunc(elem)
		if err != nil {
			output <- NewErrorElement(err)
			return err
		}

		select {
		case output <- transformed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}
