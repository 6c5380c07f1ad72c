package serveradapter

import (
	"context"
	"time"

	"github.com/streamforge/pipelinecore/pipeline/reactive"
	"github.com/streamforge/pipelinecore/pipeline/stage"
)

// StreamingUnaryFunc is a reduction business function: async domain sequence
// in, single asynchronous domain value out.
type StreamingUnaryFunc[DomainIn, DomainOut any] func(ctx context.Context, in reactive.Stream[DomainIn]) reactive.Single[DomainOut]

// StreamingUnary wraps a StreamingUnaryFunc with the adapter middleware
// chain. Auto-persist applies to the reduced output once.
type StreamingUnary[WireIn, DomainIn, DomainOut, WireOut any] struct {
	stage.BaseStep
	info     ServiceInfo
	decode   Decoder[WireIn, DomainIn]
	encode   Encoder[DomainOut, WireOut]
	dispatch StreamingUnaryFunc[DomainIn, DomainOut]
	opts     Options
}

// NewStreamingUnary builds a STREAMING_UNARY Server Adapter.
func NewStreamingUnary[WireIn, DomainIn, DomainOut, WireOut any](
	name string, info ServiceInfo,
	decode Decoder[WireIn, DomainIn], encode Encoder[DomainOut, WireOut],
	dispatch StreamingUnaryFunc[DomainIn, DomainOut], opts Options,
) *StreamingUnary[WireIn, DomainIn, DomainOut, WireOut] {
	a := &StreamingUnary[WireIn, DomainIn, DomainOut, WireOut]{
		BaseStep: stage.NewBaseStep(stage.Declaration{
			Name: name, Shape: stage.ShapeStreamingUnary, Role: stage.RolePipelineServer,
		}),
		info: info, decode: decode, encode: encode, dispatch: dispatch, opts: opts,
	}
	if opts.Config != nil {
		a.InitialiseWithConfig(*opts.Config)
	}
	return a
}

// Process implements stage.Step: the entire input stream is consumed as one
// reduction call, emitting a single output element. The inbound sequence is
// staged into a replay slice first, so a failed reduction can be retried
// against the same input.
func (a *StreamingUnary[WireIn, DomainIn, DomainOut, WireOut]) Process(
	ctx context.Context, input <-chan stage.StreamElement, output chan<- stage.StreamElement,
) error {
	defer close(output)

	start := time.Now()

	domainIns, err := a.collect(ctx, input)

	var out stage.StreamElement
	if err == nil {
		out, err = stage.RunWithRetry(ctx, a.Name(), a.Config(), &a.BaseStep, a.opts.Emitter,
			stage.NewElement(domainIns),
			func(ctx context.Context, in stage.StreamElement) (stage.StreamElement, error) {
				ins, _ := in.Payload.([]DomainIn)

				domainOut, err := a.dispatch(ctx, reactive.FromSlice(ins)).Get(ctx)
				if err != nil {
					return stage.StreamElement{}, err
				}

				if perr := persistOne(ctx, a.Config(), a.opts.Persistence, a.Name(), domainOut); perr != nil {
					return stage.StreamElement{}, perr
				}

				wireOut, err := a.encode(domainOut)
				if err != nil {
					return stage.StreamElement{}, err
				}
				return stage.NewElement(wireOut), nil
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

// collect drains and decodes the inbound channel up front. Decode failures
// are deterministic, so they fail the call without consulting the retry
// engine.
func (a *StreamingUnary[WireIn, DomainIn, DomainOut, WireOut]) collect(
	ctx context.Context, input <-chan stage.StreamElement,
) ([]DomainIn, error) {
	var ins []DomainIn
	for elem := range input {
		if elem.IsControl() {
			continue
		}
		domainIn, ok, err := decodeElement[WireIn, DomainIn](elem, a.decode)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		ins = append(ins, domainIn)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return ins, nil
}
