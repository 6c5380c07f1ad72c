package reactive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamFromSlicePreservesOrder(t *testing.T) {
	s := FromSlice([]int{1, 2, 3})
	out, err := s.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, out)
}

func TestStreamTransform(t *testing.T) {
	s := FromSlice([]int{1, 2, 3})
	doubled := StreamTransform(s, func(v int) (int, error) { return v * 2, nil })
	out, err := doubled.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 6}, out)
}

// An expansion stage applied to 42 produces [42-1, 42-2, 42-3], read in
// order downstream.
func TestStreamFlatMapToStreamPreservesSourceOrder(t *testing.T) {
	source := FromSlice([]int{42})
	expanded := StreamFlatMapToStream(source, func(v int) Stream[string] {
		return FromSlice([]string{
			fmtItem(v, 1),
			fmtItem(v, 2),
			fmtItem(v, 3),
		})
	})
	out, err := expanded.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"42-1", "42-2", "42-3"}, out)
}

func fmtItem(v, n int) string {
	return intToString(v) + "-" + intToString(n)
}

func intToString(v int) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var digits []byte
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}

func TestStreamRecoverWithPreservesEmittedPrefix(t *testing.T) {
	s := NewStream(func(_ context.Context, emit func(int) error) error {
		if err := emit(1); err != nil {
			return err
		}
		return errors.New("boom")
	})
	recovered := s.RecoverWith(func(error) Stream[int] { return FromSlice([]int{2, 3}) })
	out, err := recovered.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, out)
}

func TestStreamRetrySucceedsOnThirdAttempt(t *testing.T) {
	attempts := 0
	s := NewStream(func(_ context.Context, emit func(int) error) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return emit(attempts)
	})

	out, err := s.Retry(5, time.Millisecond, 5*time.Millisecond, false).Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{3}, out)
	assert.Equal(t, 3, attempts)
}

// retryLimit=k exhausts after exactly k+1 attempts.
func TestStreamRetryExhaustsAfterLimitPlusOne(t *testing.T) {
	attempts := 0
	boom := errors.New("always fails")
	s := NewStream(func(_ context.Context, _ func(int) error) error {
		attempts++
		return boom
	})

	_, err := s.Retry(2, time.Millisecond, 5*time.Millisecond, false).Collect(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, attempts)
}

func TestStreamOnTerminationRunsOnceOnFailure(t *testing.T) {
	calls := 0
	s := FailedStream[int](errors.New("down")).OnTermination(func() { calls++ })
	_, err := s.Collect(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
