package serveradapter

import (
	"context"
	"time"

	"github.com/streamforge/pipelinecore/pipeline/reactive"
	"github.com/streamforge/pipelinecore/pipeline/stage"
)

// UnaryUnaryFunc is a pure transform business function: single domain input
// in, single asynchronous domain output out.
type UnaryUnaryFunc[DomainIn, DomainOut any] func(ctx context.Context, in DomainIn) reactive.Single[DomainOut]

// UnaryUnary wraps a UnaryUnaryFunc with the decode/dispatch/persist/encode/
// translate-errors/record-metrics middleware chain.
type UnaryUnary[WireIn, DomainIn, DomainOut, WireOut any] struct {
	stage.BaseStep
	info     ServiceInfo
	decode   Decoder[WireIn, DomainIn]
	encode   Encoder[DomainOut, WireOut]
	dispatch UnaryUnaryFunc[DomainIn, DomainOut]
	opts     Options
}

// NewUnaryUnary builds a UNARY_UNARY Server Adapter for the given business
// function.
func NewUnaryUnary[WireIn, DomainIn, DomainOut, WireOut any](
	name string, info ServiceInfo,
	decode Decoder[WireIn, DomainIn], encode Encoder[DomainOut, WireOut],
	dispatch UnaryUnaryFunc[DomainIn, DomainOut], opts Options,
) *UnaryUnary[WireIn, DomainIn, DomainOut, WireOut] {
	a := &UnaryUnary[WireIn, DomainIn, DomainOut, WireOut]{
		BaseStep: stage.NewBaseStep(stage.Declaration{
			Name: name, Shape: stage.ShapeUnaryUnary, Role: stage.RolePipelineServer,
		}),
		info: info, decode: decode, encode: encode, dispatch: dispatch, opts: opts,
	}
	if opts.Config != nil {
		a.InitialiseWithConfig(*opts.Config)
	}
	return a
}

// Process implements stage.Step: one dispatch per inbound element.
func (a *UnaryUnary[WireIn, DomainIn, DomainOut, WireOut]) Process(
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

		out, err := a.callOne(ctx, elem)
		if err != nil {
			select {
			case output <- stage.NewErrorElement(err):
			case <-ctx.Done():
			}
			return err
		}

		select {
		case output <- out:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

func (a *UnaryUnary[WireIn, DomainIn, DomainOut, WireOut]) callOne(
	ctx context.Context, elem stage.StreamElement,
) (stage.StreamElement, error) {
	start := time.Now()

	out, err := stage.RunWithRetry(ctx, a.Name(), a.Config(), &a.BaseStep, a.opts.Emitter, elem,
		func(ctx context.Context, in stage.StreamElement) (stage.StreamElement, error) {
			domainIn, ok, err := decodeElement[WireIn, DomainIn](in, a.decode)
			if err != nil || !ok {
				return stage.StreamElement{}, err
			}

			domainOut, err := a.dispatch(ctx, domainIn).Get(ctx)
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

	return out, translateAndRecord(a.opts.Emitter, a.info, start, err)
}
