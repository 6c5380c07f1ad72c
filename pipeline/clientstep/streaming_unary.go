package clientstep

import (
	"context"
	"errors"
	"time"

	"github.com/streamforge/pipelinecore/pipeline/stage"
)

// StreamingUnary is a Client Step that streams every inbound domain element
// to the remote peer and relays its single final response, over a
// StreamTransport.
type StreamingUnary[DomainIn, Wire, DomainOut any] struct {
	stage.BaseStep
	info      ServiceInfo
	encode    Encoder[DomainIn, Wire]
	decode    Decoder[Wire, DomainOut]
	codec     WireCodec[Wire]
	transport StreamTransport
	opts      Options
}

// NewStreamingUnary builds a STREAMING_UNARY Client Step.
func NewStreamingUnary[DomainIn, Wire, DomainOut any](
	name string, info ServiceInfo,
	encode Encoder[DomainIn, Wire], decode Decoder[Wire, DomainOut],
	codec WireCodec[Wire], transport StreamTransport, opts Options,
) *StreamingUnary[DomainIn, Wire, DomainOut] {
	a := &StreamingUnary[DomainIn, Wire, DomainOut]{
		BaseStep: stage.NewBaseStep(stage.Declaration{
			Name: name, Shape: stage.ShapeStreamingUnary, Role: stage.RolePluginClient,
		}),
		info: info, encode: encode, decode: decode, codec: codec, transport: transport, opts: opts,
	}
	if opts.Config != nil {
		a.InitialiseWithConfig(*opts.Config)
	}
	return a
}

// Process implements stage.Step: the whole input channel feeds one remote
// stream, whose single terminal response becomes the one output element.
// Requests are encoded into a replay slice up front, so a failed call can
// be retried with the same frames.
func (a *StreamingUnary[DomainIn, Wire, DomainOut]) Process(
	ctx context.Context, input <-chan stage.StreamElement, output chan<- stage.StreamElement,
) error {
	defer close(output)

	start := time.Now()

	reqs, err := a.collect(input)

	var out stage.StreamElement
	if err == nil {
		out, err = stage.RunWithRetry(ctx, a.Name(), a.Config(), &a.BaseStep, a.opts.Emitter,
			stage.NewElement(reqs),
			func(ctx context.Context, in stage.StreamElement) (stage.StreamElement, error) {
				frames, _ := in.Payload.([][]byte)
				domainOut, err := a.reduce(ctx, frames)
				if err != nil {
					return stage.StreamElement{}, err
				}
				return stage.NewElement(domainOut), nil
			})
	}

	if translated := translateAndRecord(a.opts.Emitter, a.info, start, err); translated != nil {
		select {
		case output <- stage.NewErrorElement(translated):
		case <-ctx.Done():
		}
		return translated
	}

	select {
	case output <- out:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// collect drains the inbound channel, encoding and marshaling every element
// into a wire frame. Encode/marshal failures are deterministic, so they
// fail the call without consulting the retry engine.
func (a *StreamingUnary[DomainIn, Wire, DomainOut]) collect(
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

// reduce performs one remote call attempt: send every frame, then keep the
// peer's last response as the reduction result.
func (a *StreamingUnary[DomainIn, Wire, DomainOut]) reduce(
	ctx context.Context, reqs [][]byte,
) (DomainOut, error) {
	var zero DomainOut

	stream, err := a.transport.OpenStream(ctx)
	if err != nil {
		return zero, err
	}
	defer stream.Close()

	sendErrCh := make(chan error, 1)
	go func() {
		for _, reqBytes := range reqs {
			if err := stream.Send(reqBytes); err != nil {
				sendErrCh <- err
				return
			}
		}
		sendErrCh <- stream.CloseSend()
	}()

	var last DomainOut
	var gotAny bool
	for {
		respBytes, err := stream.Recv()
		if errors.Is(err, errEOF) {
			break
		}
		if err != nil {
			return zero, err
		}

		wireOut, err := a.codec.Unmarshal(respBytes)
		if err != nil {
			return zero, err
		}
		domainOut, err := a.decode(wireOut)
		if err != nil {
			return zero, err
		}
		last = domainOut
		gotAny = true
	}

	if sendErr := <-sendErrCh; sendErr != nil {
		return zero, sendErr
	}
	if !gotAny {
		return zero, errNoResponse
	}
	return last, nil
}

// HealthCheck implements stage.HealthChecker by delegating to the
// underlying StreamTransport.
func (a *StreamingUnary[DomainIn, Wire, DomainOut]) HealthCheck(ctx context.Context) error {
	return a.transport.HealthCheck(ctx)
}
