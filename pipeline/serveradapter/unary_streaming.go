package serveradapter

import (
	"context"
	"time"

	"github.com/streamforge/pipelinecore/pipeline/reactive"
	"github.com/streamforge/pipelinecore/pipeline/stage"
)

// UnaryStreamingFunc is a fan-out/expansion business function: single
// domain input in, async domain sequence out.
type UnaryStreamingFunc[DomainIn, DomainOut any] func(ctx context.Context, in DomainIn) reactive.Stream[DomainOut]

// UnaryStreaming wraps an UnaryStreamingFunc with the adapter middleware
// chain. Auto-persist applies per emitted item.
type UnaryStreaming[WireIn, DomainIn, DomainOut, WireOut any] struct {
	stage.BaseStep
	info     ServiceInfo
	decode   Decoder[WireIn, DomainIn]
	encode   Encoder[DomainOut, WireOut]
	dispatch UnaryStreamingFunc[DomainIn, DomainOut]
	opts     Options
}

// NewUnaryStreaming builds a UNARY_STREAMING Server Adapter.
func NewUnaryStreaming[WireIn, DomainIn, DomainOut, WireOut any](
	name string, info ServiceInfo,
	decode Decoder[WireIn, DomainIn], encode Encoder[DomainOut, WireOut],
	dispatch UnaryStreamingFunc[DomainIn, DomainOut], opts Options,
) *UnaryStreaming[WireIn, DomainIn, DomainOut, WireOut] {
	a := &UnaryStreaming[WireIn, DomainIn, DomainOut, WireOut]{
		BaseStep: stage.NewBaseStep(stage.Declaration{
			Name: name, Shape: stage.ShapeUnaryStreaming, Role: stage.RolePipelineServer,
		}),
		info: info, decode: decode, encode: encode, dispatch: dispatch, opts: opts,
	}
	if opts.Config != nil {
		a.InitialiseWithConfig(*opts.Config)
	}
	return a
}

// Process implements stage.Step: one fan-out dispatch per inbound element.
func (a *UnaryStreaming[WireIn, DomainIn, DomainOut, WireOut]) Process(
	ctx context.Context, input <-chan stage.StreamElement, output chan<- stage.StreamElement,
) error {
	defer close(output)

	for elem := range input {
		if elem.IsControl() {
			select {
			case output <- elem:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		if err := a.callOne(ctx, elem, output); err != nil {
			select {
			case output <- stage.NewErrorElement(err):
			case <-ctx.Done():
			}
			return err
		}
	}

	return nil
}

func (a *UnaryStreaming[WireIn, DomainIn, DomainOut, WireOut]) callOne(
	ctx context.Context, elem stage.StreamElement, output chan<- stage.StreamElement,
) error {
	start := time.Now()

	outs, err := stage.RunManyWithRetry(ctx, a.Name(), a.Config(), &a.BaseStep, a.opts.Emitter, elem,
		func(ctx context.Context, in stage.StreamElement) ([]stage.StreamElement, error) {
			domainIn, ok, err := decodeElement[WireIn, DomainIn](in, a.decode)
			if err != nil || !ok {
				return nil, err
			}

			// Emissions are batched per attempt so a mid-stream failure
			// that gets retried never duplicates output downstream.
			var batch []stage.StreamElement
			err = a.dispatch(ctx, domainIn).ForEach(ctx, func(domainOut DomainOut) error {
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

	if translated := translateAndRecord(a.opts.Emitter, a.info, start, err); translated != nil {
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
