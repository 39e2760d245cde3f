// ABOUTME: Contract tests run against every session Store backend
// ABOUTME: Covers create policy, access refresh, expiry, sweep, copies and concurrency

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-voice/internal/state"
)

const testTimeout = 5 * time.Minute

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type backendFactory func(t *testing.T, opts Options) Store

func backends() map[string]backendFactory {
	return map[string]backendFactory{
		"memory": func(t *testing.T, opts Options) Store {
			return NewMemoryStore(opts)
		},
		"sqlite": func(t *testing.T, opts Options) Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"), opts)
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
		"badger": func(t *testing.T, opts Options) Store {
			s, err := NewBadgerStore(BadgerOptions{Options: opts, InMemory: true})
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

// eachBackend runs fn against every backend with a fresh store and clock.
func eachBackend(t *testing.T, fn func(t *testing.T, s Store, clock *fakeClock)) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock()
			s := factory(t, Options{IdleTimeout: testTimeout, Now: clock.Now})
			fn(t, s, clock)
		})
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store, clock *fakeClock) {
		ctx := context.Background()

		st, err := s.Create(ctx, "CA100")
		require.NoError(t, err)
		assert.Equal(t, "CA100", st.CallID)
		assert.Equal(t, state.StageGreeting, st.Stage)

		got, err := s.Get(ctx, "CA100")
		require.NoError(t, err)
		assert.Equal(t, "CA100", got.CallID)
		assert.Equal(t, state.StageGreeting, got.Stage)
		assert.Equal(t, 0, got.TurnCount)
	})
}

func TestStore_GetMissing(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store, clock *fakeClock) {
		_, err := s.Get(context.Background(), "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_CreateRejectsLiveSession(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store, clock *fakeClock) {
		ctx := context.Background()
		_, err := s.Create(ctx, "CA1")
		require.NoError(t, err)

		_, err = s.Create(ctx, "CA1")
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})
}

func TestStore_CreateResetsEndedSession(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store, clock *fakeClock) {
		ctx := context.Background()
		st, err := s.Create(ctx, "CA1")
		require.NoError(t, err)

		st.Stage = state.StageEnded
		st.ShouldEnd = true
		st.TurnCount = 4
		require.NoError(t, s.Save(ctx, st))

		fresh, err := s.Create(ctx, "CA1")
		require.NoError(t, err)
		assert.Equal(t, state.StageGreeting, fresh.Stage)
		assert.Equal(t, 0, fresh.TurnCount)
		assert.False(t, fresh.ShouldEnd)
	})
}

func TestStore_CreateResetsExpiredSession(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store, clock *fakeClock) {
		ctx := context.Background()
		_, err := s.Create(ctx, "CA1")
		require.NoError(t, err)

		clock.Advance(testTimeout + time.Second)

		_, err = s.Create(ctx, "CA1")
		assert.NoError(t, err)
	})
}

func TestStore_GetRefreshesLastAccess(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store, clock *fakeClock) {
		ctx := context.Background()
		_, err := s.Create(ctx, "CA1")
		require.NoError(t, err)

		clock.Advance(4 * time.Minute)
		_, err = s.Get(ctx, "CA1")
		require.NoError(t, err)

		clock.Advance(4 * time.Minute)
		_, err = s.Get(ctx, "CA1")
		assert.NoError(t, err, "get should have refreshed the idle timer")
	})
}

func TestStore_IdleSessionIsAbsent(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store, clock *fakeClock) {
		ctx := context.Background()
		_, err := s.Create(ctx, "X")
		require.NoError(t, err)

		clock.Advance(testTimeout + time.Second)

		_, err = s.Get(ctx, "X")
		assert.ErrorIs(t, err, ErrNotFound)

		fresh, err := s.Create(ctx, "X")
		require.NoError(t, err)
		assert.Equal(t, 0, fresh.TurnCount)
	})
}

func TestStore_SaveRoundTrip(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store, clock *fakeClock) {
		ctx := context.Background()
		st, err := s.Create(ctx, "CA1")
		require.NoError(t, err)

		st.AppendUser("Hi, I'm interested")
		st.AppendAgent("Great, what company are you with?")
		st.TurnCount = 1
		st.Stage = state.StageDiscovery
		st.InfoGathered = true
		st.SetCustomerInfo(state.InfoCompany, "Acme")
		st.AddPainPoint("slow deploys")
		st.MarkDiscussed(state.ServiceAI)
		st.SetQualification(state.QualTimeline, "next quarter")
		st.PendingService = state.ServiceDevOps
		require.NoError(t, s.Save(ctx, st))

		got, err := s.Get(ctx, "CA1")
		require.NoError(t, err)
		require.Len(t, got.History, 2)
		assert.Equal(t, state.SpeakerUser, got.History[0].Speaker)
		assert.Equal(t, "Great, what company are you with?", got.History[1].Text)
		assert.Equal(t, 1, got.TurnCount)
		assert.Equal(t, state.StageDiscovery, got.Stage)
		assert.True(t, got.InfoGathered)
		assert.Equal(t, "Acme", got.CustomerInfo[state.InfoCompany])
		assert.Equal(t, []string{"slow deploys"}, got.PainPoints)
		assert.Equal(t, []state.ServiceType{state.ServiceAI}, got.DiscussedServices)
		assert.Equal(t, "next quarter", got.QualificationData[state.QualTimeline])
		assert.Equal(t, state.ServiceDevOps, got.PendingService)
	})
}

func TestStore_ReturnsCopies(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store, clock *fakeClock) {
		ctx := context.Background()
		_, err := s.Create(ctx, "CA1")
		require.NoError(t, err)

		got, err := s.Get(ctx, "CA1")
		require.NoError(t, err)
		got.AppendUser("unsaved")
		got.InfoGathered = true

		again, err := s.Get(ctx, "CA1")
		require.NoError(t, err)
		assert.Empty(t, again.History)
		assert.False(t, again.InfoGathered)
	})
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store, clock *fakeClock) {
		ctx := context.Background()
		_, err := s.Create(ctx, "CA1")
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, "CA1"))
		require.NoError(t, s.Delete(ctx, "CA1"))

		_, err = s.Get(ctx, "CA1")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_SweepExpired(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store, clock *fakeClock) {
		ctx := context.Background()
		_, err := s.Create(ctx, "active")
		require.NoError(t, err)
		_, err = s.Create(ctx, "idle")
		require.NoError(t, err)

		clock.Advance(3 * time.Minute)
		_, err = s.Get(ctx, "active")
		require.NoError(t, err)
		clock.Advance(3 * time.Minute)

		n, err := s.SweepExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		count, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		list, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "active", list[0].CallID)
		assert.Equal(t, state.StageGreeting, list[0].Stage)

		n, err = s.SweepExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}

func TestStore_ConcurrentDistinctCalls(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store, clock *fakeClock) {
		ctx := context.Background()
		const calls = 16

		var wg sync.WaitGroup
		errs := make(chan error, calls)
		for i := 0; i < calls; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := fmt.Sprintf("CA%02d", i)
				st, err := s.Create(ctx, id)
				if err != nil {
					errs <- err
					return
				}
				st.TurnCount = i
				errs <- s.Save(ctx, st)
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		count, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, calls, count)

		got, err := s.Get(ctx, "CA07")
		require.NoError(t, err)
		assert.Equal(t, 7, got.TurnCount)
	})
}

func TestStore_ZeroTimeoutNeverExpires(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore(Options{Now: clock.Now})
	ctx := context.Background()

	_, err := s.Create(ctx, "CA1")
	require.NoError(t, err)
	clock.Advance(24 * time.Hour)

	_, err = s.Get(ctx, "CA1")
	assert.NoError(t, err)
	n, err := s.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRunSweeper_StopsOnCancel(t *testing.T) {
	s := NewMemoryStore(Options{IdleTimeout: time.Nanosecond})
	_, err := s.Create(context.Background(), "CA1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunSweeper(ctx, s, 5*time.Millisecond, nil)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.sessions) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
