package clientstep

import "context"

// Transport performs the wire round trip for a UNARY_UNARY Client Step: one
// request, one response.
type Transport interface {
	// Call sends req and returns the remote response, honoring ctx
	// cancellation and any configured rate limit.
	Call(ctx context.Context, req []byte) ([]byte, error)

	// HealthCheck reports whether the remote endpoint is currently reachable.
	// Implements stage.HealthChecker via the owning ClientStep.
	HealthCheck(ctx context.Context) error

	// Close releases transport resources (idle connections, pools).
	Close() error
}

// StreamTransport performs the wire round trip for the three shapes whose
// input or output is an async sequence: it opens one duplex message stream
// per call.
type StreamTransport interface {
	// OpenStream opens a new duplex message stream for one call.
	OpenStream(ctx context.Context) (MessageStream, error)

	// HealthCheck reports whether the remote endpoint is currently reachable.
	HealthCheck(ctx context.Context) error

	// Close releases transport resources.
	Close() error
}

// MessageStream is one open duplex call. Send/Recv may be driven from
// different goroutines (one feeding domain input, one draining domain
// output), but each individually is called by at most one goroutine at a
// time, matching gorilla/websocket's per-connection concurrency contract.
type MessageStream interface {
	// Send writes one framed message to the remote peer.
	Send(payload []byte) error

	// Recv reads the next framed message, returning io.EOF once the peer has
	// signalled completion.
	Recv() ([]byte, error)

	// CloseSend signals that no further messages will be sent, without
	// closing the stream for reading.
	CloseSend() error

	// Close tears down the stream entirely.
	Close() error
}
