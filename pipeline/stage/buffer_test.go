package stage

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestBufferPutGetOrder(t *testing.T) {
	buf := NewBuffer("validate", 4, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := buf.Put(ctx, NewElement(i)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := buf.Len(); got != 3 {
		t.Errorf("expected Len 3, got %d", got)
	}

	for i := 0; i < 3; i++ {
		elem, ok, err := buf.Get(ctx)
		if err != nil || !ok {
			t.Fatalf("unexpected Get result: ok=%v err=%v", ok, err)
		}
		if elem.Payload != i {
			t.Errorf("expected FIFO order, got %v at position %d", elem.Payload, i)
		}
	}
}

func TestBufferCapacityFallback(t *testing.T) {
	buf := NewBuffer("x", 0, nil)
	if buf.Capacity() != DefaultBufferCapacity {
		t.Errorf("expected fallback to DefaultBufferCapacity, got %d", buf.Capacity())
	}
}

func TestBufferPutBlocksWhenFull(t *testing.T) {
	buf := NewBuffer("narrow", 1, nil)
	ctx := context.Background()

	if err := buf.Put(ctx, NewElement(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	putReturned := make(chan struct{})
	go func() {
		_ = buf.Put(ctx, NewElement(2))
		close(putReturned)
	}()

	select {
	case <-putReturned:
		t.Fatal("expected second Put to block while buffer is full")
	case <-time.After(20 * time.Millisecond):
	}

	if _, _, err := buf.Get(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-putReturned:
	case <-time.After(time.Second):
		t.Fatal("expected blocked Put to unblock after room freed")
	}
}

func TestBufferGetBlocksWhenEmpty(t *testing.T) {
	buf := NewBuffer("empty", 2, nil)
	ctx := context.Background()

	getReturned := make(chan struct{})
	go func() {
		if _, ok, _ := buf.Get(ctx); !ok {
			t.Error("expected ok=true once an item arrives")
		}
		close(getReturned)
	}()

	select {
	case <-getReturned:
		t.Fatal("expected Get to block on an empty buffer")
	case <-time.After(20 * time.Millisecond):
	}

	if err := buf.Put(ctx, NewElement("hi")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-getReturned:
	case <-time.After(time.Second):
		t.Fatal("expected blocked Get to unblock after an item was put")
	}
}

func TestBufferPutAfterCloseReturnsShuttingDown(t *testing.T) {
	buf := NewBuffer("closed", 2, nil)
	buf.Close()

	if err := buf.Put(context.Background(), NewElement(1)); err != ErrPipelineShuttingDown {
		t.Errorf("expected ErrPipelineShuttingDown, got %v", err)
	}
}

func TestBufferGetAfterCloseDrainsThenReturnsFalse(t *testing.T) {
	buf := NewBuffer("closed", 2, nil)
	buf.Close()

	_, ok, err := buf.Get(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected ok=false once closed and drained")
	}
}

type closeTrackingPayload struct {
	closed *bool
}

func (p closeTrackingPayload) Close() error {
	*p.closed = true
	return nil
}

func TestBufferCloseReleasesQueuedClosers(t *testing.T) {
	buf := NewBuffer("media", 2, nil)
	closed := false
	if err := buf.Put(context.Background(), NewElement(closeTrackingPayload{closed: &closed})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	buf.Close()

	if !closed {
		t.Error("expected queued io.Closer payload to be closed on Close")
	}
	if buf.Len() != 0 {
		t.Errorf("expected buffer to be drained, got Len %d", buf.Len())
	}
}

func TestBufferCloseWriteDrainsQueuedItemsThenReportsDone(t *testing.T) {
	buf := NewBuffer("leaf", 4, nil)
	ctx := context.Background()

	if err := buf.Put(ctx, NewElement(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := buf.Put(ctx, NewElement(2)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	buf.CloseWrite()

	for _, want := range []int{1, 2} {
		elem, ok, err := buf.Get(ctx)
		if err != nil || !ok {
			t.Fatalf("expected queued item %d to still be drainable, got ok=%v err=%v", want, ok, err)
		}
		if elem.Payload != want {
			t.Errorf("expected %d, got %v", want, elem.Payload)
		}
	}

	_, ok, err := buf.Get(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected ok=false once drained after CloseWrite")
	}
}

func TestBufferCloseWriteUnblocksWaitingGet(t *testing.T) {
	buf := NewBuffer("leaf", 2, nil)
	ctx := context.Background()

	done := make(chan bool)
	go func() {
		_, ok, _ := buf.Get(ctx)
		done <- ok
	}()

	select {
	case <-done:
		t.Fatal("expected Get to block on an empty, open buffer")
	case <-time.After(20 * time.Millisecond):
	}

	buf.CloseWrite()

	select {
	case ok := <-done:
		if ok {
			t.Error("expected ok=false after CloseWrite on an empty buffer")
		}
	case <-time.After(time.Second):
		t.Fatal("expected CloseWrite to unblock the waiting Get")
	}
}

func TestBufferCloseWriteDoesNotReleaseQueuedClosers(t *testing.T) {
	buf := NewBuffer("leaf", 2, nil)
	closed := false
	_ = buf.Put(context.Background(), NewElement(closeTrackingPayload{closed: &closed}))

	buf.CloseWrite()

	if closed {
		t.Error("CloseWrite must not release queued payloads -- that is Close's job")
	}
}

func TestBufferPutAfterCloseWriteReturnsShuttingDown(t *testing.T) {
	buf := NewBuffer("leaf", 2, nil)
	buf.CloseWrite()

	if err := buf.Put(context.Background(), NewElement(1)); err != ErrPipelineShuttingDown {
		t.Errorf("expected ErrPipelineShuttingDown, got %v", err)
	}
}

func TestBufferCloseIsIdempotent(t *testing.T) {
	buf := NewBuffer("x", 2, nil)
	buf.Close()
	buf.Close()
}

func TestBufferPutRespectsContextCancellation(t *testing.T) {
	buf := NewBuffer("full", 1, nil)
	_ = buf.Put(context.Background(), NewElement(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := buf.Put(ctx, NewElement(2)); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBufferPutUnblocksWhileParkedOnCancel(t *testing.T) {
	buf := NewBuffer("full", 1, nil)
	_ = buf.Put(context.Background(), NewElement(1))

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- buf.Put(ctx, NewElement(2))
	}()

	// Let the producer park in the full-buffer wait before cancelling.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Put stayed parked after cancellation")
	}
}

func TestBufferGetUnblocksWhileParkedOnCancel(t *testing.T) {
	buf := NewBuffer("empty", 1, nil)

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, _, err := buf.Get(ctx)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Get stayed parked after cancellation")
	}
}

func TestBufferConcurrentProducersConsumers(t *testing.T) {
	buf := NewBuffer("stress", 8, nil)
	ctx := context.Background()
	const n = 200

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			_ = buf.Put(ctx, NewElement(i))
		}
	}()

	received := 0
	for received < n {
		if _, ok, err := buf.Get(ctx); err == nil && ok {
			received++
		}
	}
	wg.Wait()

	if received != n {
		t.Errorf("expected to receive %d items, got %d", n, received)
	}
}
