package stage

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/streamforge/pipelinecore/events"
)

// itemFunc is the per-item unit of work the retry engine wraps: it takes a
// single input element and produces a single output element or an error.
type itemFunc func(ctx context.Context, in StreamElement) (StreamElement, error)

// retryEngine applies per-item retry-with-backoff, dead-letter, and
// pass-through recovery around a step's per-item function.
type retryEngine struct {
	stepName string
	config   StepConfig
	step     *BaseStep
	emitter  *events.Emitter
}

func newRetryEngine(stepName string, config StepConfig, step *BaseStep, emitter *events.Emitter) *retryEngine {
	return &retryEngine{
		stepName: stepName,
		config:   config,
		step:     step,
		emitter:  emitter,
	}
}

// ItemFunc is the exported alias of itemFunc, for callers outside this
// package (Server Adapters, Client Steps) that wrap a single-item business
// function with retry/dead-letter/recovery.
type ItemFunc = itemFunc

// ItemsFunc is the multi-output counterpart of ItemFunc: one retryable call
// that emits zero or more elements (expansion and duplex shapes).
type ItemsFunc = func(ctx context.Context, in StreamElement) ([]StreamElement, error)

// RunWithRetry applies per-item retry-with-backoff, dead-letter, and
// pass-through recovery around fn. step may be nil if the
// caller has no dead-letter handler to consult.
func RunWithRetry(
	ctx context.Context, stepName string, config StepConfig, step *BaseStep, emitter *events.Emitter,
	in StreamElement, fn ItemFunc,
) (StreamElement, error) {
	engine := newRetryEngine(stepName, config, step, emitter)
	return engine.runWith(ctx, in, fn)
}

// RunManyWithRetry applies the same retry/dead-letter/recovery policy as
// RunWithRetry around a call that emits several elements. fn must buffer its
// emissions and hand them back only on success, so a failed attempt never
// leaks partial output downstream; on exhausted retries the dead-letter or
// pass-through result is returned as a single-element batch.
func RunManyWithRetry(
	ctx context.Context, stepName string, config StepConfig, step *BaseStep, emitter *events.Emitter,
	in StreamElement, fn ItemsFunc,
) ([]StreamElement, error) {
	engine := newRetryEngine(stepName, config, step, emitter)
	return engine.runManyWith(ctx, in, fn)
}

// runWith retries fn on in, up to config.RetryLimit times, with exponential
// backoff; on exhaustion it tries the step's dead-letter handler, then
// pass-through recovery, then escalates to a PipelineFailure.
func (r *retryEngine) runWith(ctx context.Context, in StreamElement, fn itemFunc) (StreamElement, error) {
	var lastErr error

	for attempt := 0; attempt <= r.config.RetryLimit; attempt++ {
		out, err := fn(ctx, in)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if attempt == r.config.RetryLimit {
			break
		}

		delay := r.backoff(attempt)
		if r.emitter != nil {
			r.emitter.ItemRetried(r.stepName, attempt+1, delay, err)
		}

		select {
		case <-ctx.Done():
			return StreamElement{}, ctx.Err()
		case <-time.After(delay):
		}
	}

	return r.onExhausted(ctx, in, lastErr)
}

// runManyWith is runWith for calls that emit a batch of elements per
// attempt.
func (r *retryEngine) runManyWith(ctx context.Context, in StreamElement, fn ItemsFunc) ([]StreamElement, error) {
	var lastErr error

	for attempt := 0; attempt <= r.config.RetryLimit; attempt++ {
		outs, err := fn(ctx, in)
		if err == nil {
			return outs, nil
		}
		lastErr = err

		if attempt == r.config.RetryLimit {
			break
		}

		delay := r.backoff(attempt)
		if r.emitter != nil {
			r.emitter.ItemRetried(r.stepName, attempt+1, delay, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	out, err := r.onExhausted(ctx, in, lastErr)
	if err != nil {
		return nil, err
	}
	return []StreamElement{out}, nil
}

// backoff computes min(retryWait * 2^attempt, maxBackoff), adding a uniform
// full-jitter delay in [0, delay) when Jitter is enabled.
func (r *retryEngine) backoff(attempt int) time.Duration {
	raw := float64(r.config.RetryWait) * math.Pow(2, float64(attempt))
	delay := time.Duration(raw)
	if delay > r.config.MaxBackoff || delay < 0 {
		delay = r.config.MaxBackoff
	}

	if r.config.Jitter && delay > 0 {
		//nolint:gosec // full-jitter backoff does not need a CSPRNG
		delay = time.Duration(rand.Int63n(int64(delay)))
	}

	return delay
}

func (r *retryEngine) onExhausted(ctx context.Context, in StreamElement, cause error) (StreamElement, error) {
	if r.step != nil {
		if recovered, err, handled := r.step.DeadLetter(ctx, in, cause); handled {
			if r.emitter != nil {
				r.emitter.ItemDeadLettered(r.stepName, r.config.RetryLimit+1, cause)
			}
			if err != nil {
				return StreamElement{}, &PipelineFailure{StepName: r.stepName, Err: err}
			}
			return recovered, nil
		}
	}

	if r.config.RecoverOnFailure {
		if r.emitter != nil {
			r.emitter.ItemRecovered(r.stepName, r.config.RetryLimit+1, cause)
		}
		return in, nil
	}

	return StreamElement{}, &PipelineFailure{
		StepName: r.stepName,
		Err:      &TransientItemFailure{StepName: r.stepName, Attempt: r.config.RetryLimit + 1, Err: cause},
	}
}
