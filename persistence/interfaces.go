// Package persistence provides the auto-persist abstraction a Server Adapter
// uses to record a domain invocation's input and output under a transaction.
//
// A Manager opens one Session per inbound call. The Server Adapter saves the
// decoded input before dispatch and the encoded output after, then commits.
// The session is released on every exit path -- success, dispatch error, or
// encode error -- so a leaked session never outlives its call.
package persistence

import "context"

// Manager opens persistence sessions for inbound calls.
type Manager interface {
	// Begin starts a new session scoped to runID, the pipeline run this
	// call belongs to.
	Begin(ctx context.Context, runID string) (Session, error)
}

// Session is a single transactional unit of work for one call. Save may be
// called more than once (typically once for the input, once for the
// output). Close must be called exactly once, on every exit path, whether or
// not Commit or Rollback was reached.
type Session interface {
	// Save persists item under key within the session's transaction.
	Save(ctx context.Context, key string, item any) error

	// Commit finalizes the session's writes.
	Commit(ctx context.Context) error

	// Rollback discards the session's writes.
	Rollback(ctx context.Context) error

	// Close releases any resources held by the session. Safe to call after
	// Commit or Rollback, and safe to call more than once.
	Close() error
}
