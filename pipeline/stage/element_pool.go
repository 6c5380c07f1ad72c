// Package stage provides the reactive streaming architecture for pipeline execution.
package stage

import (
	"sync"
	"time"
)

// elementPool is a sync.Pool for reusing StreamElement instances.
// This reduces GC pressure in high-throughput pipeline scenarios.
var elementPool = sync.Pool{
	New: func() interface{} {
		return &StreamElement{
			Metadata: make(map[string]interface{}),
		}
	},
}

// GetElement retrieves a StreamElement from the pool or creates a new one.
// The returned element is reset to its zero state with an initialized Metadata map.
// Callers should use PutElement when the element is no longer needed.
func GetElement() *StreamElement {
	elem := elementPool.Get().(*StreamElement)
	if elem.Metadata == nil {
		elem.Metadata = make(map[string]interface{})
	}
	return elem
}

// PutElement returns a StreamElement to the pool for reuse.
// The element is reset before being returned to the pool to prevent data leaks.
// After calling PutElement, the caller must not use the element again.
func PutElement(elem *StreamElement) {
	if elem == nil {
		return
	}
	elem.Reset()
	elementPool.Put(elem)
}

// Reset clears all fields of the StreamElement to their zero values.
// This is called automatically by PutElement before returning to the pool.
// The Metadata map is cleared but retained to avoid reallocation.
func (e *StreamElement) Reset() {
	e.Payload = nil
	e.Sequence = 0
	e.Timestamp = time.Time{}
	e.Source = ""
	e.Priority = PriorityNormal

	for k := range e.Metadata {
		delete(e.Metadata, k)
	}

	e.EndOfStream = false
	e.Error = nil
}

// GetPayloadElement retrieves a StreamElement from the pool and initializes
// it with the given payload. This is a pooled alternative to NewElement.
func GetPayloadElement(payload any) *StreamElement {
	elem := GetElement()
	elem.Payload = payload
	elem.Timestamp = time.Now()
	elem.Priority = PriorityNormal
	return elem
}

// GetErrorElement retrieves a StreamElement from the pool and initializes it with an error.
// This is a pooled alternative to NewErrorElement.
func GetErrorElement(err error) *StreamElement {
	elem := GetElement()
	elem.Error = err
	elem.Timestamp = time.Now()
	elem.Priority = PriorityCritical
	return elem
}

// GetEndOfStreamElement retrieves a StreamElement from the pool and marks it as end-of-stream.
// This is a pooled alternative to NewEndOfStreamElement.
func GetEndOfStreamElement() *StreamElement {
	elem := GetElement()
	elem.EndOfStream = true
	elem.Timestamp = time.Now()
	elem.Priority = PriorityCritical
	return elem
}
