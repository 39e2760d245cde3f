// ABOUTME: In-memory Store implementation backed by a mutex-guarded map
// ABOUTME: Reference backend for single-process deployments and tests

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/2389/coven-voice/internal/state"
)

type memEntry struct {
	state      *state.ConversationState
	lastAccess time.Time
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memEntry
	opts     Options
}

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memEntry),
		opts:     opts,
	}
}

// Create starts a new session for callID.
func (m *MemoryStore) Create(ctx context.Context, callID string) (*state.ConversationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.sessions[callID]; ok && !m.opts.replaceable(e.state, e.lastAccess) {
		return nil, ErrAlreadyExists
	}

	now := m.opts.now()
	st := state.New(callID, now)
	m.sessions[callID] = &memEntry{state: st.Clone(), lastAccess: now}
	return st, nil
}

// Get retrieves a session and refreshes its last access.
func (m *MemoryStore) Get(ctx context.Context, callID string) (*state.ConversationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[callID]
	if !ok {
		return nil, ErrNotFound
	}
	if m.opts.expired(e.lastAccess) {
		delete(m.sessions, callID)
		return nil, ErrNotFound
	}
	e.lastAccess = m.opts.now()
	return e.state.Clone(), nil
}

// Save stores a copy of st.
func (m *MemoryStore) Save(ctx context.Context, st *state.ConversationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.opts.now()
	c := st.Clone()
	c.UpdatedAt = now
	m.sessions[st.CallID] = &memEntry{state: c, lastAccess: now}
	return nil
}

// Delete removes a session.
func (m *MemoryStore) Delete(ctx context.Context, callID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, callID)
	return nil
}

// SweepExpired removes idle sessions.
func (m *MemoryStore) SweepExpired(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, e := range m.sessions {
		if m.opts.expired(e.lastAccess) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of live sessions.
func (m *MemoryStore) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, e := range m.sessions {
		if !m.opts.expired(e.lastAccess) {
			n++
		}
	}
	return n, nil
}

// List returns live sessions ordered by creation time.
func (m *MemoryStore) List(ctx context.Context) ([]Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Summary, 0, len(m.sessions))
	for _, e := range m.sessions {
		if m.opts.expired(e.lastAccess) {
			continue
		}
		out = append(out, Summary{
			CallID:     e.state.CallID,
			Stage:      e.state.Stage,
			TurnCount:  e.state.TurnCount,
			CreatedAt:  e.state.CreatedAt,
			LastAccess: e.lastAccess,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CallID < out[j].CallID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
