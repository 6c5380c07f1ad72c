package serveradapter

import (
	"context"
	"time"

	"github.com/streamforge/pipelinecore/pipeline/reactive"
	"github.com/streamforge/pipelinecore/pipeline/stage"
)

// StreamingStreamingFunc is a bidirectional/batch-transform business
// function: async domain sequence in, async domain sequence out.
type StreamingStreamingFunc[DomainIn, DomainOut any] func(ctx context.Context, in reactive.Stream[DomainIn]) reactive.Stream[DomainOut]

// StreamingStreaming wraps a StreamingStreamingFunc with the adapter
// middleware chain. Auto-persist applies per emitted item.
type StreamingStreaming[WireIn, DomainIn, DomainOut, WireOut any] struct {
	stage.BaseStep
	info     ServiceInfo
	decode   Decoder[WireIn, DomainIn]
	encode   Encoder[DomainOut, WireOut]
	dispatch StreamingStreamingFunc[DomainIn, DomainOut]
	opts     Options
}

// NewStreamingStreaming builds a STREAMING_STREAMING Server Adapter.
func NewStreamingStreaming[WireIn, DomainIn, DomainOut, WireOut any](
	name string, info ServiceInfo,
	decode Decoder[WireIn, DomainIn], encode Encoder[DomainOut, WireOut],
	dispatch StreamingStreamingFunc[DomainIn, DomainOut], opts Options,
) *StreamingStreaming[WireIn, DomainIn, DomainOut, WireOut] {
	a := &StreamingStreaming[WireIn, DomainIn, DomainOut, WireOut]{
		BaseStep: stage.NewBaseStep(stage.Declaration{
			Name: name, Shape: stage.ShapeStreamingStreaming, Role: stage.RolePipelineServer,
		}),
		info: info, decode: decode, encode: encode, dispatch: dispatch, opts: opts,
	}
	if opts.Config != nil {
		a.InitialiseWithConfig(*opts.Config)
	}
	return a
}

// Process implements stage.Step: the input channel feeds the business
// function as one batch-transform call. The inbound sequence is staged into
// a replay slice and the outbound one is batched per attempt, so a failed
// call can be retried without replaying a half-consumed stream or
// duplicating already-emitted output.
func (a *StreamingStreaming[WireIn, DomainIn, DomainOut, WireOut]) Process(
	ctx context.Context, input <-chan stage.StreamElement, output chan<- stage.StreamElement,
) error {
	defer close(output)

	start := time.Now()

	domainIns, err := a.collect(ctx, input)

	var outs []stage.StreamElement
	if err == nil {
		outs, err = stage.RunManyWithRetry(ctx, a.Name(), a.Config(), &a.BaseStep, a.opts.Emitter,
			stage.NewElement(domainIns),
			func(ctx context.Context, in stage.StreamElement) ([]stage.StreamElement, error) {
				ins, _ := in.Payload.([]DomainIn)

				var batch []stage.StreamElement
				err := a.dispatch(ctx, reactive.FromSlice(ins)).ForEach(ctx, func(domainOut DomainOut) error {
					if perr := persistOne(ctx, a.Config(), a.opts.Persistence, a.Name(), domainOut); perr != nil {
						return perr
					}
					wireOut, err := a.encode(domainOut)
					if err != nil {
						return err
					}
					batch = append(batch, stage.NewElement(wireOut))
					return nil
				})
				if err != nil {
					return nil, err
				}
				return batch, nil
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

// collect drains and decodes the inbound channel up front. Decode failures
// are deterministic, so they fail the call without consulting the retry
// engine.
func (a *StreamingStreaming[WireIn, DomainIn, DomainOut, WireOut]) collect(
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
