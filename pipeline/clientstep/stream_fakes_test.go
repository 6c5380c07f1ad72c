package clientstep

import (
	"context"
	"errors"
	"sync"
)

// fakeMessageStream replays a fixed list of response frames and records every
// frame sent to it, standing in for a real duplex wire connection in tests.
type fakeMessageStream struct {
	mu       sync.Mutex
	sent     [][]byte
	recv     [][]byte
	recvIdx  int
	recvErr  error
	sendErr  error
	closed   bool
	closeErr error
}

func (s *fakeMessageStream) Send(payload []byte) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := append([]byte(nil), payload...)
	s.sent = append(s.sent, cp)
	return nil
}

func (s *fakeMessageStream) Recv() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recvIdx >= len(s.recv) {
		if s.recvErr != nil {
			return nil, s.recvErr
		}
		return nil, errEOF
	}
	out := s.recv[s.recvIdx]
	s.recvIdx++
	return out, nil
}

func (s *fakeMessageStream) CloseSend() error { return nil }

func (s *fakeMessageStream) Close() error {
	s.closed = true
	return s.closeErr
}

// fakeStreamTransport hands out a single fakeMessageStream per OpenStream
// call, or fails to open one if openErr is set. failOpens makes the first N
// opens fail before succeeding, for retry tests.
type fakeStreamTransport struct {
	stream    *fakeMessageStream
	openErr   error
	failOpens int
	opens     int
	healthErr error
}

func (t *fakeStreamTransport) OpenStream(_ context.Context) (MessageStream, error) {
	t.opens++
	if t.openErr != nil {
		return nil, t.openErr
	}
	if t.failOpens > 0 {
		t.failOpens--
		return nil, errFakeTransport
	}
	return t.stream, nil
}

func (t *fakeStreamTransport) HealthCheck(_ context.Context) error { return t.healthErr }
func (t *fakeStreamTransport) Close() error                        { return nil }

var errFakeTransport = errors.New("fake transport failure")
