// Package store persists per-call conversation sessions.
//
// # Architecture
//
// Store is the only owner of a ConversationState between turns. Callers get
// copies from Get and hand back whole records through Save; nothing holds a
// live reference across turns.
//
// Three backends implement the interface:
//
//   - MemoryStore: mutex-guarded map, the reference implementation
//   - SQLiteStore: modernc.org/sqlite, JSON state blob plus lifecycle columns
//   - BadgerStore: BadgerDB, msgpack-encoded records under session/<callID>
//
// Open selects one from configuration.
//
// # Lifetime
//
// Every Get refreshes the session's last-access time. A session idle for
// longer than Options.IdleTimeout is treated as absent: Get removes it and
// returns ErrNotFound, and SweepExpired removes all such sessions in bulk.
// RunSweeper drives SweepExpired on a ticker.
//
// Create on a call ID that already has a live session fails with
// ErrAlreadyExists, unless the existing session has reached the ended stage
// or has expired, in which case it is reset.
//
// # Errors
//
//   - ErrNotFound: no live session
//   - ErrAlreadyExists: Create on a live, non-ended session
//   - ErrUnavailable: the backend failed; wraps the underlying error
package store
