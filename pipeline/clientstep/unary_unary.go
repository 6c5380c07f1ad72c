package clientstep

import (
	"context"
	"time"

	"github.com/streamforge/pipelinecore/pipeline/stage"
)

// UnaryUnary is a Client Step that turns a single domain input into a single
// remote call returning a single domain output, over a Transport.
type UnaryUnary[DomainIn, Wire, DomainOut any] struct {
	stage.BaseStep
	info      ServiceInfo
	encode    Encoder[DomainIn, Wire]
	decode    Decoder[Wire, DomainOut]
	codecIn   WireCodec[Wire]
	codecOut  WireCodec[Wire]
	transport Transport
	opts      Options
}

// NewUnaryUnary builds a UNARY_UNARY Client Step calling transport once per
// inbound element.
func NewUnaryUnary[DomainIn, Wire, DomainOut any](
	name string, info ServiceInfo,
	encode Encoder[DomainIn, Wire], decode Decoder[Wire, DomainOut],
	codec WireCodec[Wire], transport Transport, opts Options,
) *UnaryUnary[DomainIn, Wire, DomainOut] {
	a := &UnaryUnary[DomainIn, Wire, DomainOut]{
		BaseStep: stage.NewBaseStep(stage.Declaration{
			Name: name, Shape: stage.ShapeUnaryUnary, Role: stage.RolePluginClient,
		}),
		info: info, encode: encode, decode: decode,
		codecIn: codec, codecOut: codec, transport: transport, opts: opts,
	}
	if opts.Config != nil {
		a.InitialiseWithConfig(*opts.Config)
	}
	return a
}

// Process implements stage.Step: one remote call per inbound element.
func (a *UnaryUnary[DomainIn, Wire, DomainOut]) Process(
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

func (a *UnaryUnary[DomainIn, Wire, DomainOut]) callOne(
	ctx context.Context, elem stage.StreamElement,
) (stage.StreamElement, error) {
	start := time.Now()

	out, err := stage.RunWithRetry(ctx, a.Name(), a.Config(), &a.BaseStep, a.opts.Emitter, elem,
		func(ctx context.Context, in stage.StreamElement) (stage.StreamElement, error) {
			domainIn, _ := in.Payload.(DomainIn)
			wireIn, err := a.encode(domainIn)
			if err != nil {
				return stage.StreamElement{}, err
			}

			reqBytes, err := a.codecIn.Marshal(wireIn)
			if err != nil {
				return stage.StreamElement{}, err
			}

			respBytes, err := a.transport.Call(ctx, reqBytes)
			if err != nil {
				return stage.StreamElement{}, err
			}

			wireOut, err := a.codecOut.Unmarshal(respBytes)
			if err != nil {
				return stage.StreamElement{}, err
			}

			domainOut, err := a.decode(wireOut)
			if err != nil {
				return stage.StreamElement{}, err
			}

			return stage.NewElement(domainOut), nil
		})

	return out, translateAndRecord(a.opts.Emitter, a.info, start, err)
}

// HealthCheck implements stage.HealthChecker by delegating to the
// underlying Transport.
func (a *UnaryUnary[DomainIn, Wire, DomainOut]) HealthCheck(ctx context.Context) error {
	return a.transport.HealthCheck(ctx)
}
