// Package json provides a JSON-file-backed persistence.Manager. Each run
// writes one file under basePath named "<runID>.json" containing the
// session's saved records, written atomically on Commit.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/streamforge/pipelinecore/persistence"
)

var _ persistence.Manager = (*Manager)(nil)

// record is one saved key/item pair, as written to disk.
type record struct {
	Key  string          `json:"key"`
	Item json.RawMessage `json:"item"`
}

// runFile is the on-disk shape of a run's persisted records.
type runFile struct {
	RunID   string   `json:"runId"`
	Records []record `json:"records"`
}

// Manager persists run records as JSON files under basePath.
type Manager struct {
	basePath string
	mu       sync.Mutex
}

// NewManager creates a JSON file persistence manager rooted at basePath.
// basePath is created if it does not already exist.
func NewManager(basePath string) (*Manager, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create persistence directory: %w", err)
	}
	return &Manager{basePath: basePath}, nil
}

// Begin starts a new session for runID.
func (m *Manager) Begin(_ context.Context, runID string) (persistence.Session, error) {
	return &session{manager: m, runID: runID}, nil
}

func (m *Manager) path(runID string) string {
	return filepath.Join(m.basePath, runID+".json")
}

type session struct {
	manager *Manager
	runID   string

	mu       sync.Mutex
	pending  []record
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

	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item for key %q: %w", key, err)
	}

	s.pending = append(s.pending, record{Key: key, Item: raw})
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
	defer s.manager.mu.Unlock()

	file := runFile{RunID: s.runID, Records: s.pending}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run file: %w", err)
	}

	path := s.manager.path(s.runID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write run file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to finalize run file: %w", err)
	}

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

// Load reads back a committed run file's records, decoding each item's raw
// JSON into out via json.Unmarshal -- callers typically decode into a
// map[string]json.RawMessage first and unmarshal individual keys on demand.
func Load(basePath, runID string) (map[string]json.RawMessage, error) {
	path := filepath.Join(basePath, runID+".json")
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is derived from trusted run IDs
	if err != nil {
		return nil, fmt.Errorf("failed to read run file: %w", err)
	}

	var file runFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse run file: %w", err)
	}

	out := make(map[string]json.RawMessage, len(file.Records))
	for _, rec := range file.Records {
		out[rec.Key] = rec.Item
	}
	return out, nil
}
