package reactive

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingleJustResolves(t *testing.T) {
	s := Just(42)
	val, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, val)
}

func TestSingleFailedPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	s := Failed[int](boom)
	_, err := s.Get(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestSingleTransform(t *testing.T) {
	s := Just(2)
	doubled := SingleTransform(s, func(v int) (int, error) { return v * 2, nil })
	val, err := doubled.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, val)
}

func TestSingleRecoverWith(t *testing.T) {
	s := Failed[int](errors.New("down"))
	recovered := s.RecoverWith(func(error) Single[int] { return Just(7) })
	val, err := recovered.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, val)
}

func TestSingleOnTerminationRunsOnce(t *testing.T) {
	calls := 0
	s := Just(1).OnTermination(func() { calls++ })
	_, _ = s.Get(context.Background())
	assert.Equal(t, 1, calls)
}

func TestSingleGetRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSingle(func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	_, err := s.Get(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSingleFlatMapToStream(t *testing.T) {
	s := Just(3)
	expanded := SingleFlatMapToStream(s, func(v int) Stream[int] {
		return FromSlice([]int{v - 1, v, v + 1})
	})
	out, err := expanded.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4}, out)
}
