// Package clientstep implements Client Steps: typed façades over a remote
// endpoint that implement the same Step contract as a local stage, so the
// executor cannot tell a Client Step apart from a process-local one.
// Locality only selects the Transport. Each shape runs the mirror image of
// the Server Adapter's middleware: encode -> marshal -> transport call ->
// unmarshal -> decode -> translate-errors -> record-metrics.
package clientstep

import (
	"encoding/json"
	"time"

	"github.com/streamforge/pipelinecore/events"
	"github.com/streamforge/pipelinecore/pipeline/stage"
)

// ServiceInfo names the RPC service/method a Client Step records telemetry
// under (the rpc.service and rpc.method tags).
type ServiceInfo struct {
	Service string
	Method  string
}

// Encoder converts a domain value to a wire value before marshaling.
type Encoder[Domain, Wire any] func(Domain) (Wire, error)

// Decoder converts a wire value back to a domain value after unmarshaling.
type Decoder[Wire, Domain any] func(Wire) (Domain, error)

// Identity is the Encoder/Decoder used when no mapper is configured because
// the wire and domain types coincide.
func Identity[T any](v T) (T, error) { return v, nil }

// WireCodec marshals a wire value to bytes for the transport and back,
// decoupling the Client Step's wire type from any single serialization
// (JSON for HTTP, the same struct reused with a binary codec for
// websocket/eventstream).
type WireCodec[Wire any] struct {
	Marshal   func(Wire) ([]byte, error)
	Unmarshal func([]byte) (Wire, error)
}

// JSONCodec builds a WireCodec that marshals Wire as JSON, the default
// encoding for HTTPTransport.
func JSONCodec[Wire any]() WireCodec[Wire] {
	return WireCodec[Wire]{
		Marshal: func(w Wire) ([]byte, error) { return json.Marshal(w) },
		Unmarshal: func(b []byte) (Wire, error) {
			var w Wire
			err := json.Unmarshal(b, &w)
			return w, err
		},
	}
}

// Options configures the middleware common to all four Client Step shapes.
type Options struct {
	Emitter *events.Emitter
	Config  *stage.StepConfig
}

// translateAndRecord converts err (if non-nil) to a *stage.TransportStatus
// and records the RPC client call, the client-side mirror of
// serveradapter.translateAndRecord.
func translateAndRecord(emitter *events.Emitter, info ServiceInfo, start time.Time, err error) error {
	status := "OK"
	var result error
	if err != nil {
		status = string(stage.TransportStatusInternal)
		result = stage.NewTransportStatus(err)
	}
	if emitter != nil {
		emitter.RPCClientCall(info.Service, info.Method, status, time.Since(start))
	}
	return result
}
