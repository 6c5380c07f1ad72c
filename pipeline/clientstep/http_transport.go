package clientstep

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/streamforge/pipelinecore/credentials"
)

// Connection pooling defaults, matching the pooled-transport idiom used
// throughout this codebase for outbound HTTP clients.
const (
	DefaultMaxIdleConns        = 1000
	DefaultMaxIdleConnsPerHost = 100
	DefaultMaxConnsPerHost     = 100
	DefaultIdleConnTimeout     = 90 * time.Second
	DefaultTLSHandshakeTimeout = 10 * time.Second
	DefaultDialTimeout         = 30 * time.Second
	DefaultDialKeepAlive       = 30 * time.Second

	// DefaultHTTPTimeout bounds a single Call's round trip.
	DefaultHTTPTimeout = 30 * time.Second
)

// NewPooledTransport creates an *http.Transport configured with connection
// pooling settings suitable for high-throughput Client Step traffic.
func NewPooledTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   DefaultDialTimeout,
			KeepAlive: DefaultDialKeepAlive,
		}).DialContext,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConns:        DefaultMaxIdleConns,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		MaxConnsPerHost:     DefaultMaxConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
		TLSHandshakeTimeout: DefaultTLSHandshakeTimeout,
		ForceAttemptHTTP2:   true,
	}
}

// HTTPTransport is the default UNARY_UNARY Transport: a pooled HTTP client
// POSTing the wire request body and returning the wire response body.
type HTTPTransport struct {
	client      *http.Client
	url         string
	healthURL   string
	credential  credentials.Credential
	limiter     *rate.Limiter
	contentType string
}

// HTTPOption configures an HTTPTransport at construction time.
type HTTPOption func(*HTTPTransport)

// WithCredential attaches a credentials.Credential applied to every request.
func WithCredential(cred credentials.Credential) HTTPOption {
	return func(t *HTTPTransport) { t.credential = cred }
}

// WithRateLimit bounds outbound call rate via golang.org/x/time/rate,
// alongside (not instead of) the step's retry/backoff policy.
func WithRateLimit(limiter *rate.Limiter) HTTPOption {
	return func(t *HTTPTransport) { t.limiter = limiter }
}

// WithHealthURL overrides the URL polled by HealthCheck; it defaults to the
// call URL itself.
func WithHealthURL(url string) HTTPOption {
	return func(t *HTTPTransport) { t.healthURL = url }
}

// WithTimeout overrides the per-call HTTP client timeout.
func WithTimeout(timeout time.Duration) HTTPOption {
	return func(t *HTTPTransport) { t.client.Timeout = timeout }
}

// WithContentType overrides the request Content-Type header (default
// "application/json").
func WithContentType(contentType string) HTTPOption {
	return func(t *HTTPTransport) { t.contentType = contentType }
}

// NewHTTPTransport creates an HTTPTransport POSTing to url.
func NewHTTPTransport(url string, opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		client: &http.Client{
			Timeout:   DefaultHTTPTimeout,
			Transport: otelhttp.NewTransport(NewPooledTransport()),
		},
		url:         url,
		contentType: "application/json",
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Call performs one POST round trip, applying the configured credential and
// rate limit.
func (t *HTTPTransport) Call(ctx context.Context, req []byte) ([]byte, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(req))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", t.contentType)

	if t.credential != nil {
		if err := t.credential.Apply(ctx, httpReq); err != nil {
			return nil, fmt.Errorf("failed to apply credential: %w", err)
		}
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote call failed with status %d: %s", resp.StatusCode, string(respBytes))
	}

	return respBytes, nil
}

// HealthCheck performs a best-effort GET against the configured health URL
// (or the call URL, if none was set), treating any non-5xx response as
// healthy.
func (t *HTTPTransport) HealthCheck(ctx context.Context) error {
	url := t.healthURL
	if url == "" {
		url = t.url
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // draining for connection reuse

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("remote endpoint unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// Close releases idle pooled connections.
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
