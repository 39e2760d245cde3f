// ABOUTME: Session store interface and shared types for per-call conversation state
// ABOUTME: Backends own each ConversationState and expire idle sessions

package store

import (
	"context"
	"errors"
	"time"

	"github.com/2389/coven-voice/internal/state"
)

// Common errors
var (
	ErrNotFound      = errors.New("session not found")
	ErrAlreadyExists = errors.New("session already exists")
	ErrUnavailable   = errors.New("session store unavailable")
)

// Summary is the listing view of a live session.
type Summary struct {
	CallID     string      `json:"call_id"`
	Stage      state.Stage `json:"stage"`
	TurnCount  int         `json:"turn_count"`
	CreatedAt  time.Time   `json:"created_at"`
	LastAccess time.Time   `json:"last_access"`
}

// Store is the single source of truth for session lifetime. Implementations
// must be safe for concurrent use across distinct call IDs and must hand
// out copies, never references to their own records.
type Store interface {
	// Create starts a session. If a live session exists it fails with
	// ErrAlreadyExists unless that session has ended or expired, in which
	// case it is replaced.
	Create(ctx context.Context, callID string) (*state.ConversationState, error)

	// Get returns the session and refreshes its last-access time. Expired
	// sessions are removed and reported as ErrNotFound.
	Get(ctx context.Context, callID string) (*state.ConversationState, error)

	// Save stores st under st.CallID, refreshing last access.
	Save(ctx context.Context, st *state.ConversationState) error

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, callID string) error

	// SweepExpired removes every session idle longer than the timeout and
	// returns how many were removed.
	SweepExpired(ctx context.Context) (int, error)

	Count(ctx context.Context) (int, error)
	List(ctx context.Context) ([]Summary, error)
	Close() error
}

// Options are shared by every backend.
type Options struct {
	// IdleTimeout is how long a session may go without access. Zero disables expiry.
	IdleTimeout time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o Options) expired(lastAccess time.Time) bool {
	if o.IdleTimeout <= 0 {
		return false
	}
	return o.now().Sub(lastAccess) > o.IdleTimeout
}

// replaceable reports whether an existing session may be reset by Create.
func (o Options) replaceable(existing *state.ConversationState, lastAccess time.Time) bool {
	return o.expired(lastAccess) || existing.Stage.Terminal()
}
