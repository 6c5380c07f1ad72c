// Package reactive provides the minimal "Single" and "Stream" asynchronous
// primitives the Server Adapters and Client Steps are composed from: a
// computation that eventually emits exactly one value or failure (Single),
// and a lazy sequence of zero-or-more values plus one terminal signal
// (Stream). Both are cancellation-propagating and cooperate with
// backpressure -- neither type silently drops an item.
package reactive

import (
	"context"
	"errors"
)

// ErrCancelled is returned by a Single or Stream when its context is
// cancelled before a terminal value/failure/completion is observed.
var ErrCancelled = errors.New("reactive: cancelled")

// Single represents a computation that eventually emits exactly one value
// or one failure. It is lazy: the wrapped function does not run until Get
// is called.
type Single[T any] struct {
	run func(ctx context.Context) (T, error)
}

// NewSingle wraps fn as a Single. fn is invoked exactly once per Get call.
func NewSingle[T any](fn func(ctx context.Context) (T, error)) Single[T] {
	return Single[T]{run: fn}
}

// Just returns a Single that resolves immediately to value.
func Just[T any](value T) Single[T] {
	return NewSingle(func(_ context.Context) (T, error) {
		return value, nil
	})
}

// Failed returns a Single that resolves immediately to err.
func Failed[T any](err error) Single[T] {
	return NewSingle(func(_ context.Context) (T, error) {
		var zero T
		return zero, err
	})
}

// Get runs the Single to completion, honoring ctx cancellation.
func (s Single[T]) Get(ctx context.Context) (T, error) {
	type result struct {
		val T
		err error
	}

	done := make(chan result, 1)
	go func() {
		val, err := s.run(ctx)
		done <- result{val, err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// OnTermination registers fn to run exactly once, whether the Single
// succeeds, fails, or is cancelled.
func (s Single[T]) OnTermination(fn func()) Single[T] {
	return NewSingle(func(ctx context.Context) (T, error) {
		defer fn()
		return s.run(ctx)
	})
}

// SingleTransform maps a Single[In] into a Single[Out] via fn. Named as a
// free function (rather than a method) because Go methods cannot introduce
// new type parameters.
func SingleTransform[In, Out any](s Single[In], fn func(In) (Out, error)) Single[Out] {
	return NewSingle(func(ctx context.Context) (Out, error) {
		in, err := s.run(ctx)
		if err != nil {
			var zero Out
			return zero, err
		}
		return fn(in)
	})
}

// SingleFlatMapToStream expands a Single[In] into a Stream[Out] once it
// resolves, the expansion half of the step contract.
func SingleFlatMapToStream[In, Out any](s Single[In], fn func(In) Stream[Out]) Stream[Out] {
	return NewStream(func(ctx context.Context, emit func(Out) error) error {
		in, err := s.run(ctx)
		if err != nil {
			return err
		}
		return fn(in).forEach(ctx, emit)
	})
}

// RecoverWith substitutes a fallback Single when s fails, without changing
// the success path.
func (s Single[T]) RecoverWith(fn func(error) Single[T]) Single[T] {
	return NewSingle(func(ctx context.Context) (T, error) {
		val, err := s.run(ctx)
		if err == nil {
			return val, nil
		}
		return fn(err).run(ctx)
	})
}

// OnFailureTransform substitutes a fallback value when s fails, without
// changing the success path.
func (s Single[T]) OnFailureTransform(fn func(error) (T, error)) Single[T] {
	return NewSingle(func(ctx context.Context) (T, error) {
		val, err := s.run(ctx)
		if err == nil {
			return val, nil
		}
		return fn(err)
	})
}
