package clientstep

import (
	"context"
	"errors"
	"time"

	"github.com/streamforge/pipelinecore/pipeline/stage"
)

// UnaryStreaming is a Client Step that sends one domain input and relays
// every message the remote peer streams back, over a StreamTransport.
type UnaryStreaming[DomainIn, Wire, DomainOut any] struct {
	stage.BaseStep
	info      ServiceInfo
	encode    Encoder[DomainIn, Wire]
	decode    Decoder[Wire, DomainOut]
	codec     WireCodec[Wire]
	transport StreamTransport
	opts      Options
}

// NewUnaryStreaming builds a UNARY_STREAMING Client Step.
func NewUnaryStreaming[DomainIn, Wire, DomainOut any](
	name string, info ServiceInfo,
	encode Encoder[DomainIn, Wire], decode Decoder[Wire, DomainOut],
	codec WireCodec[Wire], transport StreamTransport, opts Options,
) *UnaryStreaming[DomainIn, Wire, DomainOut] {
	a := &UnaryStreaming[DomainIn, Wire, DomainOut]{
		BaseStep: stage.NewBaseStep(stage.Declaration{
			Name: name, Shape: stage.ShapeUnaryStreaming, Role: stage.RolePluginClient,
		}),
		info: info, encode: encode, decode: decode, codec: codec, transport: transport, opts: opts,
	}
	if opts.Config != nil {
		a.InitialiseWithConfig(*opts.Config)
	}
	return a
}

// Process implements stage.Step: one remote stream opened per inbound
// element, fanning its messages out to output.
func (a *UnaryStreaming[DomainIn, Wire, DomainOut]) Process(
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

func (a *UnaryStreaming[DomainIn, Wire, DomainOut]) callOne(
	ctx context.Context, elem stage.StreamElement, output chan<- stage.StreamElement,
) error {
	start := time.Now()

	outs, err := stage.RunManyWithRetry(ctx, a.Name(), a.Config(), &a.BaseStep, a.opts.Emitter, elem,
		func(ctx context.Context, in stage.StreamElement) ([]stage.StreamElement, error) {
			return a.fanOut(ctx, in)
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

// fanOut performs one remote stream attempt, collecting every response so a
// failed attempt leaks nothing downstream before the retry engine rules on
// it.
func (a *UnaryStreaming[DomainIn, Wire, DomainOut]) fanOut(
	ctx context.Context, elem stage.StreamElement,
) ([]stage.StreamElement, error) {
	domainIn, _ := elem.Payload.(DomainIn)
	wireIn, err := a.encode(domainIn)
	if err != nil {
		return nil, err
	}
	reqBytes, err := a.codec.Marshal(wireIn)
	if err != nil {
		return nil, err
	}

	stream, err := a.transport.OpenStream(ctx)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Send(reqBytes); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	var outs []stage.StreamElement
	for {
		respBytes, err := stream.Recv()
		if errors.Is(err, errEOF) {
			return outs, nil
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
}

// HealthCheck implements stage.HealthChecker by delegating to the
// underlying StreamTransport.
func (a *UnaryStreaming[DomainIn, Wire, DomainOut]) HealthCheck(ctx context.Context) error {
	return a.transport.HealthCheck(ctx)
}
