// Package serveradapter implements the four Server Adapter templates:
// composition-based middleware (decode -> dispatch ->
// auto-persist -> encode -> translate-errors -> record-metrics) wrapping a
// user step's business function, one per streaming shape.
package serveradapter

import (
	"context"
	"time"

	"github.com/streamforge/pipelinecore/events"
	"github.com/streamforge/pipelinecore/persistence"
	"github.com/streamforge/pipelinecore/pipeline/stage"
)

// ServiceInfo names the RPC service/method an adapter records telemetry
// under (the rpc.service and rpc.method tags).
type ServiceInfo struct {
	Service string
	Method  string
}

// Decoder converts a wire value to a domain value.
type Decoder[Wire, Domain any] func(Wire) (Domain, error)

// Encoder converts a domain value to a wire value.
type Encoder[Domain, Wire any] func(Domain) (Wire, error)

// Identity is the Decoder/Encoder used when no mapper is configured because
// the wire and domain types coincide.
func Identity[T any](v T) (T, error) { return v, nil }

// runIDKey scopes a persistence session to the pipeline run a call belongs
// to, per persistence.Manager.Begin's contract.
type runIDKeyType struct{}

var runIDKey runIDKeyType

// WithRunID attaches runID to ctx so nested adapter calls share one
// persistence scope.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// runIDFrom returns the run ID attached to ctx, generating a fresh one if
// none is present.
func runIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok && id != "" {
		return id
	}
	return stage.NewRunID()
}

// Options configures the common adapter middleware shared by all four
// shapes. Config is optional: nil leaves the step's BaseStep default
// (stage.DefaultStepConfig) in place.
type Options struct {
	Persistence persistence.Manager
	Emitter     *events.Emitter
	Config      *stage.StepConfig
}

// translateAndRecord converts err (if non-nil) to a *stage.TransportStatus
// and records the RPC server call.
func translateAndRecord(emitter *events.Emitter, info ServiceInfo, start time.Time, err error) error {
	status := "OK"
	var result error
	if err != nil {
		status = string(stage.TransportStatusInternal)
		result = stage.NewTransportStatus(err)
	}
	if emitter != nil {
		emitter.RPCServerCall(info.Service, info.Method, status, time.Since(start))
	}
	return result
}

// persistOne saves a single item under the call's persistence session, if
// auto-persist is enabled and a Manager is configured. It is a no-op
// otherwise.
func persistOne(ctx context.Context, cfg stage.StepConfig, mgr persistence.Manager, key string, item any) error {
	if !cfg.AutoPersist || mgr == nil {
		return nil
	}

	session, err := mgr.Begin(ctx, runIDFrom(ctx))
	if err != nil {
		return err
	}

	if err := session.Save(ctx, key, item); err != nil {
		_ = session.Rollback(ctx)
		_ = session.Close()
		return err
	}

	if err := session.Commit(ctx); err != nil {
		_ = session.Close()
		return err
	}
	return session.Close()
}

// decodeElement extracts and decodes a wire payload from a StreamElement,
// skipping control elements (end-of-stream, already-errored).
func decodeElement[Wire, Domain any](elem stage.StreamElement, decode Decoder[Wire, Domain]) (Domain, bool, error) {
	var zero Domain
	if elem.IsControl() {
		return zero, false, nil
	}
	wireIn, _ := elem.Payload.(Wire)
	domainIn, err := decode(wireIn)
	if err != nil {
		return zero, false, err
	}
	return domainIn, true, nil
}
