package clientstep

import (
	"context"
	"errors"
	"time"

	"github.com/streamforge/pipelinecore/pipeline/stage"
)

// StreamingStreaming is a Client Step that opens one duplex remote stream
// for the whole call, concurrently draining the inbound domain sequence
// into Send and relaying every Recv'd message to output.
type StreamingStreaming[DomainIn, Wire, DomainOut any] struct {
	stage.BaseStep
	info      ServiceInfo
	encode    Encoder[DomainIn, Wire]
	decode    Decoder[Wire, DomainOut]
	codec     WireCodec[Wire]
	transport StreamTransport
	opts      Options
}

// NewStreamingStreaming builds a STREAMING_STREAMING Client Step.
func NewStreamingStreaming[DomainIn, Wire, DomainOut any](
	name string, info ServiceInfo,
	encode Encoder[DomainIn, Wire], decode Decoder[Wire, DomainOut],
	codec WireCodec[Wire], transport StreamTransport, opts Options,
) *StreamingStreaming[DomainIn, Wire, DomainOut] {
	a := &StreamingStreaming[DomainIn, Wire, DomainOut]{
		BaseStep: stage.NewBaseStep(stage.Declaration{
			Name: name, Shape: stage.ShapeStreamingStreaming, Role: stage.RolePluginClient,
		}),
		info: info, encode: encode, decode: decode, codec: codec, transport: transport, opts: opts,
	}
	if opts.Config != nil {
		a.InitialiseWithConfig(*opts.Config)
	}
	return a
}

// Process implements stage.Step: a single duplex stream carries the whole
// call, send and receive running concurrently. Requests are encoded into a
// replay slice and responses batched per attempt, so a failed call can be
// retried without re-reading a half-consumed input channel or duplicating
// already-relayed output.
func (a *StreamingStreaming[DomainIn, Wire, DomainOut]) Process(
	ctx context.Context, input <-chan stage.StreamElement, output chan<- stage.StreamElement,
) error {
	defer close(output)

	start := time.Now()

	reqs, err := a.collect(input)

	var outs []stage.StreamElement
	if err == nil {
		outs, err = stage.RunManyWithRetry(ctx, a.Name(), a.Config(), &a.BaseStep, a.opts.Emitter,
			stage.NewElement(reqs),
			func(ctx context.Context, in stage.StreamElement) ([]stage.StreamElement, error) {
				frames, _ := in.Payload.([][]byte)
				return a.relay(ctx, frames)
			})
	}

	if translated := translateAndRecord(a.opts.Emitter, a.info, start, err); translated != nil {
		select {
		case output <- stage.NewErrorElement(translated):
		case <-ctx.Done():
		}
		return translated
	}

	for _, out := range outs {
		select {
		case output <- out:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// collect drains the inbound channel, encoding and marshaling every element
// into a wire frame. Encode/marshal failures are deterministic, so they
// fail the call without consulting the retry engine.
func (a *StreamingStreaming[DomainIn, Wire, DomainOut]) collect(
	input <-chan stage.StreamElement,
) ([][]byte, error) {
	var reqs [][]byte
	for elem := range input {
		if elem.IsControl() {
			continue
		}
		domainIn, _ := elem.Payload.(DomainIn)
		wireIn, err := a.encode(domainIn)
		if err != nil {
			return nil, err
		}
		reqBytes, err := a.codec.Marshal(wireIn)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, reqBytes)
	}
	return reqs, nil
}

// relay performs one duplex call attempt, send and receive running
// concurrently, collecting every decoded response.
func (a *StreamingStreaming[DomainIn, Wire, DomainOut]) relay(
	ctx context.Context, reqs [][]byte,
) ([]stage.StreamElement, error) {
	stream, err := a.transport.OpenStream(ctx)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	sendErrCh := make(chan error, 1)
	go func() {
		for _, reqBytes := range reqs {
			if err := stream.Send(reqBytes); err != nil {
				sendErrCh <- err
				return
			}
			if ctx.Err() != nil {
				sendErrCh <- ctx.Err()
				return
			}
		}
		sendErrCh <- stream.CloseSend()
	}()

	var outs []stage.StreamElement
	for {
		respBytes, err := stream.Recv()
		if errors.Is(err, errEOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		wireOut, err := a.codec.Unmarshal(respBytes)
		if err != nil {
			return nil, err
		}
		domainOut, err := a.decode(wireOut)
		if err != nil {
			return nil, err
		}
		outs = append(outs, stage.NewElement(domainOut))

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	if sendErr := <-sendErrCh; sendErr != nil {
		return nil, sendErr
	}
	return outs, nil
}

// HealthCheck implements stage.HealthChecker by delegating to the
// underlying StreamTransport.
func (a *StreamingStreaming[DomainIn, Wire, DomainOut]) HealthCheck(ctx context.Context) error {
	return a.transport.HealthCheck(ctx)
}
