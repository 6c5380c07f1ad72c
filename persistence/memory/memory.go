// Package memory provides an in-memory persistence.Manager, primarily for
// testing and for pipelines that opt into auto-persist without a durable
// backend.
package memory

import (
	"context"
	"sync"

	"github.com/streamforge/pipelinecore/persistence"
)

var _ persistence.Manager = (*Manager)(nil)

// Record is one committed (runID, key) -> item entry.
type Record struct {
	RunID string
	Key   string
	Item  any
}

// Manager stores committed records in memory, keyed by runID.
type Manager struct {
	mu      sync.RWMutex
	records map[string][]Record
}

// NewManager creates an empty in-memory persistence manager.
func NewManager() *Manager {
	return &Manager{records: make(map[string][]Record)}
}

// Begin starts a new in-memory session for runID.
func (m *Manager) Begin(_ context.Context, runID string) (persistence.Session, error) {
	return &session{manager: m, runID: runID}, nil
}

// Records returns a copy of the committed records for runID.
func (m *Manager) Records(runID string) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := m.records[runID]
	out := make([]Record, len(recs))
	copy(out, recs)
	return out
}

type session struct {
	manager *Manager
	runID   string

	mu       sync.Mutex
	pending  []Record
	closed   bool
	resolved bool
}

func (s *session) Save(_ context.Context, key string, item any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return persistence.ErrSessionClosed
	}
	if key == "" {
		return persistence.ErrEmptyKey
	}
	if item == nil {
		return persistence.ErrNilItem
	}

	s.pending = append(s.pending, Record{RunID: s.runID, Key: key, Item: item})
	return nil
}

func (s *session) Commit(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return persistence.ErrSessionClosed
	}
	if s.resolved {
		return nil
	}

	s.manager.mu.Lock()
	s.manager.records[s.runID] = append(s.manager.records[s.runID], s.pending...)
	s.manager.mu.Unlock()

	s.resolved = true
	return nil
}

func (s *session) Rollback(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return persistence.ErrSessionClosed
	}
	s.pending = nil
	s.resolved = true
	return nil
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
