package clientstep

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamforge/pipelinecore/pipeline/stage"
)

func TestClientStreamingUnarySendsAllAndReturnsFinalResponse(t *testing.T) {
	cfg := stage.DefaultStepConfig().WithRetryLimit(0)

	transport := &fakeStreamTransport{
		stream: &fakeMessageStream{recv: [][]byte{[]byte("6")}},
	}

	step := NewStreamingUnary[int, int, int](
		"sum", ServiceInfo{Service: "svc", Method: "Sum"},
		Identity[int], Identity[int], JSONCodec[int](), transport, Options{Config: &cfg},
	)

	input := make(chan stage.StreamElement, 3)
	input <- stage.NewElement(1)
	input <- stage.NewElement(2)
	input <- stage.NewElement(3)
	close(input)

	output := make(chan stage.StreamElement, 1)
	err := step.Process(context.Background(), input, output)
	require.NoError(t, err)

	elems := drain(t, output)
	require.Len(t, elems, 1)
	assert.Equal(t, 6, elems[0].Payload)
	assert.Len(t, transport.stream.sent, 3)
}

func TestClientStreamingUnaryErrorsWhenPeerNeverResponds(t *testing.T) {
	cfg := stage.DefaultStepConfig().WithRetryLimit(0)

	transport := &fakeStreamTransport{stream: &fakeMessageStream{}}

	step := NewStreamingUnary[int, int, int](
		"sum", ServiceInfo{Service: "svc", Method: "Sum"},
		Identity[int], Identity[int], JSONCodec[int](), transport, Options{Config: &cfg},
	)

	input := make(chan stage.StreamElement, 1)
	input <- stage.NewElement(1)
	close(input)

	output := make(chan stage.StreamElement, 1)
	err := step.Process(context.Background(), input, output)
	require.Error(t, err)

	elems := drain(t, output)
	require.Len(t, elems, 1)
	assert.NotNil(t, elems[0].Error)
}

func TestClientStreamingUnaryRetriesFailedCall(t *testing.T) {
	cfg := stage.DefaultStepConfig().WithRetryLimit(2).WithRetryWait(time.Millisecond)

	transport := &fakeStreamTransport{
		failOpens: 2,
		stream:    &fakeMessageStream{recv: [][]byte{[]byte("6")}},
	}

	step := NewStreamingUnary[int, int, int](
		"sum", ServiceInfo{Service: "svc", Method: "Sum"},
		Identity[int], Identity[int], JSONCodec[int](), transport, Options{Config: &cfg},
	)

	input := make(chan stage.StreamElement, 2)
	input <- stage.NewElement(1)
	input <- stage.NewElement(2)
	close(input)

	output := make(chan stage.StreamElement, 1)
	err := step.Process(context.Background(), input, output)
	require.NoError(t, err)

	elems := drain(t, output)
	require.Len(t, elems, 1)
	assert.Equal(t, 6, elems[0].Payload)
	assert.Equal(t, 3, transport.opens)
	// The successful attempt replays every collected request frame.
	assert.Len(t, transport.stream.sent, 2)
}
