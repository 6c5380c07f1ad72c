package stage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/streamforge/pipelinecore/events"
	"github.com/streamforge/pipelinecore/logger"
)

// Pipeline is an assembled, executable DAG of steps. It owns the per-run
// backpressure buffers between steps, applies the resolved parallelism mode
// and retry engine per step, and reports lifecycle events to its emitter.
type Pipeline struct {
	steps        []Step
	edges        map[string][]string // step name -> downstream step names
	config       *PipelineConfig
	eventEmitter *events.Emitter
	mode         map[string]DispatchMode

	wg         sync.WaitGroup
	shutdown   chan struct{}
	shutdownMu sync.RWMutex
	isShutdown bool
}

// Execute starts the pipeline, consuming input and returning a channel of
// all elements emitted by the pipeline's leaf steps. Execution runs in
// background goroutines; the returned channel closes when every step has
// finished.
func (p *Pipeline) Execute(ctx context.Context, input <-chan StreamElement) (<-chan StreamElement, error) {
	if p.isShuttingDown() {
		return nil, ErrPipelineShuttingDown
	}

	execCtx := ctx
	var cancel context.CancelFunc
	if p.config.ExecutionTimeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, p.config.ExecutionTimeout)
		logger.Info("Pipeline execution timeout configured",
			"timeout", p.config.ExecutionTimeout,
			"steps", len(p.steps))
	}

	p.wg.Add(1)

	output := make(chan StreamElement, p.config.ChannelBufferSize)

	go p.executeBackground(execCtx, input, output, cancel)

	return output, nil
}

// executeBackground runs every step concurrently and collects leaf output
// alongside step execution, so streaming/duplex steps that run indefinitely
// don't need the whole DAG to finish before output starts flowing.
func (p *Pipeline) executeBackground(
	ctx context.Context,
	input <-chan StreamElement,
	output chan<- StreamElement,
	cancel context.CancelFunc,
) {
	defer func() {
		p.wg.Done()
		if cancel != nil {
			cancel()
		}
	}()

	start := time.Now()
	if p.eventEmitter != nil {
		p.eventEmitter.PipelineStarted(len(p.steps))
	}

	p.monitorExecutionTimeout(ctx, start)

	// runCtx is cancelled on the first step failure, so sibling steps
	// parked on a backpressured buffer or mid-call unblock and drain
	// instead of hanging the run.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	buffers := p.createBuffers()
	defer p.closeBuffers(buffers)

	stepErrors := p.startSteps(runCtx, input, buffers)
	outputDone := p.startOutputCollection(ctx, buffers, output)

	firstError := p.waitForStepErrors(stepErrors, cancelRun)
	<-outputDone

	p.emitCompletionEvent(firstError, time.Since(start))
}

func (p *Pipeline) monitorExecutionTimeout(ctx context.Context, start time.Time) {
	if p.config.ExecutionTimeout <= 0 {
		return
	}

	go func() {
		<-ctx.Done()
		if ctx.Err() == context.DeadlineExceeded {
			logger.Error("pipeline execution timeout triggered",
				"configured_timeout", p.config.ExecutionTimeout,
				"elapsed", time.Since(start),
				"steps", len(p.steps),
				"hint", "increase ExecutionTimeout or use WithExecutionTimeout(0) for long-running pipelines")
		}
	}()
}

// createBuffers allocates one backpressure Buffer per step output.
func (p *Pipeline) createBuffers() map[string]*Buffer {
	buffers := make(map[string]*Buffer, len(p.steps))
	for _, step := range p.steps {
		buffers[step.Name()] = NewBuffer(step.Name(), p.config.BufferCapacity, p.eventEmitter)
	}
	return buffers
}

func (p *Pipeline) closeBuffers(buffers map[string]*Buffer) {
	for _, buf := range buffers {
		buf.Close()
	}
}

// startSteps runs every step as a goroutine, wiring its input from the
// pipeline input or the appropriate upstream buffer, and its output into its
// own buffer.
func (p *Pipeline) startSteps(
	ctx context.Context,
	input <-chan StreamElement,
	buffers map[string]*Buffer,
) <-chan error {
	stepWg := sync.WaitGroup{}
	stepErrors := make(chan error, len(p.steps))

	for _, step := range p.steps {
		stepInput := p.stepInputChannel(ctx, step, input, buffers)
		stepOutput := p.stepOutputChannel(ctx, step, buffers)

		stepWg.Add(1)
		go p.runStep(ctx, step, stepInput, stepOutput, &stepWg, stepErrors)
	}

	go func() {
		stepWg.Wait()
		close(stepErrors)
	}()

	return stepErrors
}

// stepInputChannel adapts the step's upstream source (pipeline input or an
// upstream buffer) into a plain channel the Step.Process contract expects.
func (p *Pipeline) stepInputChannel(
	ctx context.Context,
	step Step,
	pipelineInput <-chan StreamElement,
	buffers map[string]*Buffer,
) <-chan StreamElement {
	if p.isRootStep(step.Name()) {
		return pipelineInput
	}

	upstream := p.findUpstreamStep(step.Name())
	if upstream == "" {
		ch := make(chan StreamElement)
		close(ch)
		return ch
	}

	return bufferToChannel(ctx, buffers[upstream])
}

// stepOutputChannel adapts a step's output into a channel that forwards
// every element into the step's own backpressure buffer.
func (p *Pipeline) stepOutputChannel(ctx context.Context, step Step, buffers map[string]*Buffer) chan<- StreamElement {
	return channelToBuffer(ctx, buffers[step.Name()])
}

func (p *Pipeline) isRootStep(stepName string) bool {
	for _, toSteps := range p.edges {
		for _, toStep := range toSteps {
			if toStep == stepName {
				return false
			}
		}
	}
	return true
}

func (p *Pipeline) findUpstreamStep(stepName string) string {
	for fromStep, toSteps := range p.edges {
		for _, toStep := range toSteps {
			if toStep == stepName {
				return fromStep
			}
		}
	}
	return ""
}

// runStep executes a single step, wrapping it with lifecycle events and
// converting its terminal error into a StepError for reporting upstream.
func (p *Pipeline) runStep(
	ctx context.Context,
	step Step,
	input <-chan StreamElement,
	output chan<- StreamElement,
	wg *sync.WaitGroup,
	errCh chan<- error,
) {
	defer wg.Done()

	start := time.Now()
	if p.eventEmitter != nil {
		p.eventEmitter.StageStarted(step.Name(), step.Shape().String())
	}

	err := step.Process(ctx, input, output)
	duration := time.Since(start)

	if p.eventEmitter != nil {
		if err != nil {
			p.eventEmitter.StageFailed(step.Name(), step.Shape().String(), err, duration)
		} else {
			p.eventEmitter.StageCompleted(step.Name(), step.Shape().String(), duration)
		}
	}

	if err != nil {
		errCh <- NewStepError(step.Name(), step.Shape(), err)
	}
}

// waitForStepErrors captures the first step failure and cancels the run so
// every sibling step unblocks; later errors are the fallout of that
// cancellation and are dropped.
func (p *Pipeline) waitForStepErrors(stepErrors <-chan error, cancelRun context.CancelFunc) error {
	var firstError error
	for err := range stepErrors {
		if err != nil && firstError == nil {
			firstError = err
			cancelRun()
		}
	}
	return firstError
}

// startOutputCollection drains every leaf step's buffer into the pipeline's
// output channel.
func (p *Pipeline) startOutputCollection(
	ctx context.Context,
	buffers map[string]*Buffer,
	output chan<- StreamElement,
) <-chan struct{} {
	outputDone := make(chan struct{})
	go func() {
		p.collectOutput(ctx, buffers, output)
		close(output)
		close(outputDone)
	}()
	return outputDone
}

func (p *Pipeline) collectOutput(ctx context.Context, buffers map[string]*Buffer, output chan<- StreamElement) {
	var wg sync.WaitGroup
	for _, step := range p.steps {
		if len(p.edges[step.Name()]) != 0 {
			continue
		}
		buf := buffers[step.Name()]
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				elem, ok, err := buf.Get(ctx)
				if err != nil || !ok {
					return
				}
				output <- elem
			}
		}()
	}
	wg.Wait()
}

func (p *Pipeline) emitCompletionEvent(err error, duration time.Duration) {
	if p.eventEmitter == nil {
		return
	}
	if err != nil {
		p.eventEmitter.PipelineFailed(err, duration)
	} else {
		p.eventEmitter.PipelineCompleted(duration, 0)
	}
}

// Shutdown gracefully shuts down the pipeline, waiting for in-flight
// executions to complete before the configured grace period elapses.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.shutdownMu.Lock()
	if p.isShutdown {
		p.shutdownMu.Unlock()
		return nil
	}
	p.isShutdown = true
	close(p.shutdown)
	p.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	shutdownCtx, cancel := context.WithTimeout(ctx, p.config.GracefulShutdownTimeout)
	defer cancel()

	select {
	case <-done:
		return nil
	case <-shutdownCtx.Done():
		return fmt.Errorf("%w: %v", ErrShutdownTimeout, p.config.GracefulShutdownTimeout)
	}
}

func (p *Pipeline) isShuttingDown() bool {
	p.shutdownMu.RLock()
	defer p.shutdownMu.RUnlock()
	return p.isShutdown
}

// bufferToChannel adapts a Buffer into a receive channel, stopping once the
// buffer closes or ctx is cancelled.
func bufferToChannel(ctx context.Context, buf *Buffer) <-chan StreamElement {
	ch := make(chan StreamElement)
	go func() {
		defer close(ch)
		for {
			elem, ok, err := buf.Get(ctx)
			if err != nil || !ok {
				return
			}
			select {
			case ch <- elem:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// channelToBuffer returns a send channel whose writes are relayed into buf
// via the backpressure-aware Put, so a step's output naturally blocks on a
// full downstream buffer.
func channelToBuffer(ctx context.Context, buf *Buffer) chan<- StreamElement {
	ch := make(chan StreamElement)
	go func() {
		defer buf.CloseWrite()
		for elem := range ch {
			if err := buf.Put(ctx, elem); err != nil {
				return
			}
		}
	}()
	return ch
}
