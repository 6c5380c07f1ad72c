package clientstep

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketTransport is a StreamTransport carrying each call's request/
// response sequence over a single websocket connection -- the built-in
// streaming transport for UNARY_STREAMING and STREAMING_STREAMING Client
// Steps, alongside the AWS-native eventstream option.
type WebSocketTransport struct {
	dialer *websocket.Dialer
	url    string
	header http.Header
}

// WebSocketOption configures a WebSocketTransport at construction time.
type WebSocketOption func(*WebSocketTransport)

// WithHandshakeTimeout overrides the websocket handshake timeout (default 10s).
func WithHandshakeTimeout(timeout time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) { t.dialer.HandshakeTimeout = timeout }
}

// WithHeader sets a header sent with the upgrade request (e.g. Authorization).
func WithHeader(key, value string) WebSocketOption {
	return func(t *WebSocketTransport) { t.header.Set(key, value) }
}

// NewWebSocketTransport creates a WebSocketTransport dialing url (ws:// or wss://).
func NewWebSocketTransport(url string, opts ...WebSocketOption) *WebSocketTransport {
	t := &WebSocketTransport{
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		url:    url,
		header: make(http.Header),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OpenStream dials a new websocket connection for one call.
func (t *WebSocketTransport) OpenStream(ctx context.Context) (MessageStream, error) {
	conn, _, err := t.dialer.DialContext(ctx, t.url, t.header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return &webSocketMessageStream{conn: conn}, nil
}

// HealthCheck opens and immediately tears down a connection.
func (t *WebSocketTransport) HealthCheck(ctx context.Context) error {
	conn, _, err := t.dialer.DialContext(ctx, t.url, t.header)
	if err != nil {
		return fmt.Errorf("websocket health check failed: %w", err)
	}
	return conn.Close()
}

// Close is a no-op: connections are opened per-call and closed by the
// caller when the call completes.
func (t *WebSocketTransport) Close() error { return nil }

type webSocketMessageStream struct {
	conn *websocket.Conn
}

// Send writes payload as a single binary websocket message.
func (s *webSocketMessageStream) Send(payload []byte) error {
	return s.conn.WriteMessage(websocket.BinaryMessage, payload)
}

// Recv reads the next binary message, translating a peer-initiated close
// into io.EOF.
func (s *webSocketMessageStream) Recv() ([]byte, error) {
	_, data, err := s.conn.ReadMessage()
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil, errEOF
	}
	return data, err
}

// CloseSend sends a normal-closure control frame without tearing down the
// read side.
func (s *webSocketMessageStream) CloseSend() error {
	return s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// Close tears down the underlying connection.
func (s *webSocketMessageStream) Close() error {
	return s.conn.Close()
}
