package stage

import (
	"context"
	"io"
	"sync"

	"github.com/streamforge/pipelinecore/events"
)

// Buffer is a bounded FIFO queue inserted between two steps by the executor.
// It cooperates with backpressure: Put blocks the upstream producer while the
// buffer is full rather than dropping items, and Get blocks the downstream
// consumer while the buffer is empty.
type Buffer struct {
	stepClass string
	capacity  int
	emitter   *events.Emitter

	mu             sync.Mutex
	cond           *sync.Cond
	items          []StreamElement
	closed         bool
	closedForWrite bool
}

// NewBuffer creates a backpressure buffer of the given capacity for the named
// step class. A non-positive capacity falls back to DefaultBufferCapacity.
func NewBuffer(stepClass string, capacity int, emitter *events.Emitter) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	b := &Buffer{
		stepClass: stepClass,
		capacity:  capacity,
		emitter:   emitter,
		items:     make([]StreamElement, 0, capacity),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// watchCancel wakes every waiter when ctx is cancelled, so a Put or Get
// parked in cond.Wait observes the cancellation instead of sleeping through
// it. The returned stop function must run before the call returns.
func (b *Buffer) watchCancel(ctx context.Context) func() {
	if ctx.Done() == nil {
		return func() {}
	}
	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			// Taking the lock orders the Broadcast after the waiter's
			// ctx.Err() check, so the wakeup cannot be lost.
			b.mu.Lock()
			b.cond.Broadcast()
			b.mu.Unlock()
		case <-stopped:
		}
	}()
	return func() { close(stopped) }
}

// Put enqueues elem, blocking until the buffer has room, the buffer is
// closed, or ctx is cancelled.
func (b *Buffer) Put(ctx context.Context, elem StreamElement) error {
	stop := b.watchCancel(ctx)
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.items) >= b.capacity && !b.closed && !b.closedForWrite {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.cond.Wait()
	}
	if b.closed || b.closedForWrite {
		return ErrPipelineShuttingDown
	}

	b.items = append(b.items, elem)
	b.reportDepthLocked()
	b.cond.Broadcast()
	return nil
}

// Get dequeues the oldest element, blocking until one is available, the
// buffer is closed and drained (ok=false), or ctx is cancelled.
func (b *Buffer) Get(ctx context.Context) (elem StreamElement, ok bool, err error) {
	stop := b.watchCancel(ctx)
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.items) == 0 && !b.closed && !b.closedForWrite {
		if ctx.Err() != nil {
			return StreamElement{}, false, ctx.Err()
		}
		b.cond.Wait()
	}
	if len(b.items) == 0 {
		return StreamElement{}, false, nil
	}

	elem = b.items[0]
	b.items = b.items[1:]
	b.reportDepthLocked()
	b.cond.Broadcast()
	return elem, true, nil
}

// Len reports the current queued depth.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Capacity reports the configured capacity.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// CloseWrite marks the buffer as having no further producers. Items already
// queued remain available to Get; once they are drained, Get reports
// ok=false. Unlike Close, CloseWrite does not discard queued items or
// release their payloads -- it signals end-of-stream, not shutdown.
func (b *Buffer) CloseWrite() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || b.closedForWrite {
		return
	}
	b.closedForWrite = true
	b.cond.Broadcast()
}

// Close drains the buffer, releasing any io.Closer-backed payloads still
// queued, and unblocks any producer or consumer waiting on it. Close is safe
// to call more than once.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, elem := range b.items {
		if closer, isCloser := elem.Payload.(io.Closer); isCloser {
			_ = closer.Close()
		}
	}
	b.items = nil
	b.reportDepthLocked()
	b.cond.Broadcast()
}

func (b *Buffer) reportDepthLocked() {
	if b.emitter != nil {
		b.emitter.BufferDepthChanged(b.stepClass, len(b.items), b.capacity)
	}
}
