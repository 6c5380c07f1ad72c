package reactive

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Stream represents a lazy sequence of zero-or-more values plus exactly one
// terminal signal (completion or failure). The wrapped function is not run
// until a consumer calls ForEach, Collect, or Subscribe.
//
// Ordering guarantee: per-subscription, emissions are observed in producer
// order. A Stream built from Transform/FlatMapToStream preserves that order;
// callers wanting relaxed/parallel semantics compose Streams explicitly
// (the pipeline executor's parallelism policy governs concurrent stages, not
// this primitive in isolation).
type Stream[T any] struct {
	// run invokes emit once per element in order, returning the first error
	// encountered (from the producer or from emit itself, e.g. a cancelled
	// consumer), or nil on ordinary completion.
	run func(ctx context.Context, emit func(T) error) error
}

// NewStream wraps a producer function as a Stream.
func NewStream[T any](fn func(ctx context.Context, emit func(T) error) error) Stream[T] {
	return Stream[T]{run: fn}
}

// FromSlice returns a Stream that emits every element of items, in order.
func FromSlice[T any](items []T) Stream[T] {
	return NewStream(func(ctx context.Context, emit func(T) error) error {
		for _, item := range items {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := emit(item); err != nil {
				return err
			}
		}
		return nil
	})
}

// Empty returns a Stream that emits nothing and completes immediately.
func Empty[T any]() Stream[T] {
	return NewStream(func(_ context.Context, _ func(T) error) error {
		return nil
	})
}

// FailedStream returns a Stream that fails immediately with err.
func FailedStream[T any](err error) Stream[T] {
	return NewStream(func(_ context.Context, _ func(T) error) error {
		return err
	})
}

// forEach is the unexported entry point used by other primitives in this
// package; ForEach is the public, ctx-defaulting surface.
func (s Stream[T]) forEach(ctx context.Context, fn func(T) error) error {
	return s.run(ctx, fn)
}

// ForEach runs the Stream to completion, invoking fn for every element in
// order. It stops and returns the first error from either the producer or
// fn, and propagates ctx cancellation as ErrCancelled.
func (s Stream[T]) ForEach(ctx context.Context, fn func(T) error) error {
	err := s.run(ctx, func(v T) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fn(v)
	})
	if err == nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Collect runs the Stream to completion and returns every emitted element.
func (s Stream[T]) Collect(ctx context.Context) ([]T, error) {
	var out []T
	err := s.ForEach(ctx, func(v T) error {
		out = append(out, v)
		return nil
	})
	return out, err
}

// OnTermination registers fn to run exactly once, whether the Stream
// completes, fails, or is cancelled.
func (s Stream[T]) OnTermination(fn func()) Stream[T] {
	return NewStream(func(ctx context.Context, emit func(T) error) error {
		defer fn()
		return s.run(ctx, emit)
	})
}

// StreamTransform maps each element of a Stream[In] into a Stream[Out] via
// fn, preserving order.
func StreamTransform[In, Out any](s Stream[In], fn func(In) (Out, error)) Stream[Out] {
	return NewStream(func(ctx context.Context, emit func(Out) error) error {
		return s.run(ctx, func(in In) error {
			out, err := fn(in)
			if err != nil {
				return err
			}
			return emit(out)
		})
	})
}

// StreamFlatMapToStream expands each element of a Stream[In] into its own
// sub-stream, concatenating sub-stream emissions in source order (the
// default flattening rule for stream-valued stages; callers
// wanting merge-on-relaxed-order semantics should fan the sub-streams out
// themselves under the executor's parallelism policy).
func StreamFlatMapToStream[In, Out any](s Stream[In], fn func(In) Stream[Out]) Stream[Out] {
	return NewStream(func(ctx context.Context, emit func(Out) error) error {
		return s.run(ctx, func(in In) error {
			return fn(in).forEach(ctx, emit)
		})
	})
}

// RecoverWith substitutes a fallback Stream for everything from the point of
// failure onward (the already-emitted prefix is preserved).
func (s Stream[T]) RecoverWith(fn func(error) Stream[T]) Stream[T] {
	return NewStream(func(ctx context.Context, emit func(T) error) error {
		err := s.run(ctx, emit)
		if err == nil {
			return nil
		}
		return fn(err).forEach(ctx, emit)
	})
}

// Retry re-subscribes to s up to limit times on failure, with exponential
// backoff min(baseWait*2^attempt, maxBackoff); when jitter is true a
// uniform-random delay in [0, delay) is added. Already-emitted elements from
// a failed attempt are NOT replayed -- Retry re-runs the whole producer, so
// it is only safe to use on idempotent/replayable Streams (matching the
// per-item retry engine's scope in pipeline/stage/retry.go; this is the
// stream-level analogue used directly by Client Steps and Server Adapters).
func (s Stream[T]) Retry(limit int, baseWait, maxBackoff time.Duration, jitter bool) Stream[T] {
	return NewStream(func(ctx context.Context, emit func(T) error) error {
		var lastErr error
		for attempt := 0; attempt <= limit; attempt++ {
			if err := s.run(ctx, emit); err == nil {
				return nil
			} else { //nolint:revive // explicit else keeps the retry/backoff flow linear
				lastErr = err
			}

			if attempt == limit {
				break
			}

			delay := backoffDelay(attempt, baseWait, maxBackoff, jitter)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		return lastErr
	})
}

func backoffDelay(attempt int, baseWait, maxBackoff time.Duration, jitter bool) time.Duration {
	raw := float64(baseWait) * math.Pow(2, float64(attempt))
	delay := time.Duration(raw)
	if delay > maxBackoff || delay < 0 {
		delay = maxBackoff
	}
	if jitter && delay > 0 {
		//nolint:gosec // full-jitter backoff does not need a CSPRNG
		delay = time.Duration(rand.Int63n(int64(delay)))
	}
	return delay
}
