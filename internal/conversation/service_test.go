// ABOUTME: Tests for the turn controller
// ABOUTME: Call scenarios, rollback on model failure, expiry, per-call serialization and events

package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-voice/internal/llm"
	"github.com/2389/coven-voice/internal/prompts"
	"github.com/2389/coven-voice/internal/stages"
	"github.com/2389/coven-voice/internal/state"
	"github.com/2389/coven-voice/internal/store"
	"github.com/2389/coven-voice/internal/supervisor"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	svc      *Service
	sessions *store.MemoryStore
	clock    *testClock
	events   *EventBroadcaster
}

func newHarness(t *testing.T, sup supervisor.Supervisor, stageClient llm.Client) *harness {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	sessions := store.NewMemoryStore(store.Options{IdleTimeout: 5 * time.Minute, Now: clock.Now})
	events := NewEventBroadcaster(nil)
	t.Cleanup(events.Close)

	registry := stages.NewRegistry(stageClient, prompts.DefaultCatalog(), nil)
	svc := New(sessions, sup, registry, events, Options{}, nil)
	return &harness{svc: svc, sessions: sessions, clock: clock, events: events}
}

func toolCall(name string, args map[string]any) *llm.ToolCall {
	return &llm.ToolCall{Name: name, Arguments: args}
}

func TestStart_SeedsGreetingOnce(t *testing.T) {
	h := newHarness(t, supervisor.NewRules(supervisor.Policy{}), llm.NewFake("ok"))
	ctx := context.Background()

	greeting, err := h.svc.Start(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, prompts.DefaultGreeting, greeting)

	greeting, err = h.svc.Start(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, prompts.DefaultGreeting, greeting)

	st, err := h.svc.State(ctx, "C1")
	require.NoError(t, err)
	assert.True(t, st.Greeted)
	require.Len(t, st.History, 1)
	assert.Equal(t, state.SpeakerAgent, st.History[0].Speaker)
	assert.Equal(t, state.StageGreeting, st.Stage)

	_, err = h.svc.Start(ctx, "  ")
	assert.ErrorIs(t, err, ErrMalformedInbound)
}

func TestStart_CustomGreeting(t *testing.T) {
	sessions := store.NewMemoryStore(store.Options{})
	registry := stages.NewRegistry(llm.NewFake("ok"), nil, nil)
	svc := New(sessions, supervisor.NewRules(supervisor.Policy{}), registry, nil, Options{Greeting: "Hi, it's Maya."}, nil)

	greeting, err := svc.Start(context.Background(), "C1")
	require.NoError(t, err)
	assert.Equal(t, "Hi, it's Maya.", greeting)
}

func TestHandleTurn_CallScenario(t *testing.T) {
	supModel := &llm.Fake{ToolCalls: []*llm.ToolCall{
		toolCall("gather_information", nil),
		toolCall("provide_service_info", map[string]any{"service_type": "AI"}),
		toolCall("schedule_callback", nil),
		toolCall("provide_service_info", nil),
	}}
	stageModel := &llm.Fake{Replies: []string{
		"Great! What company are you with?",
		"For retail we build churn prediction.",
		"How about Tuesday morning?",
		"Thanks for your time. Goodbye!",
	}}
	h := newHarness(t, supervisor.NewModel(supModel, supervisor.Policy{MaxTurns: 15}, nil), stageModel)
	ctx := context.Background()

	_, err := h.svc.Start(ctx, "C1")
	require.NoError(t, err)

	res, err := h.svc.HandleTurn(ctx, "C1", "Hi, I'm interested")
	require.NoError(t, err)
	assert.Equal(t, supervisor.RouteGatherInfo, res.Route)
	assert.Equal(t, state.StageDiscovery, res.Stage)
	st, _ := h.svc.State(ctx, "C1")
	assert.True(t, st.InfoGathered)

	res, err = h.svc.HandleTurn(ctx, "C1", "We're a retail company. Tell me about AI")
	require.NoError(t, err)
	assert.Equal(t, supervisor.RouteServiceInfo, res.Route)
	assert.Equal(t, state.StagePresentation, res.Stage)
	st, _ = h.svc.State(ctx, "C1")
	assert.Equal(t, []state.ServiceType{state.ServiceAI}, st.DiscussedServices)
	assert.Equal(t, "retail", st.CustomerInfo[state.InfoIndustry])

	res, err = h.svc.HandleTurn(ctx, "C1", "I need to call back later")
	require.NoError(t, err)
	assert.Equal(t, supervisor.RouteSchedule, res.Route)
	assert.Equal(t, state.StageClosing, res.Stage)
	assert.False(t, res.Hangup)
	st, _ = h.svc.State(ctx, "C1")
	assert.True(t, st.ShouldEnd)

	res, err = h.svc.HandleTurn(ctx, "C1", "Actually, tell me about blockchain")
	require.NoError(t, err)
	assert.Equal(t, supervisor.RouteEnd, res.Route, "once the call should end every route is end")
	assert.Equal(t, state.StageEnded, res.Stage)
	assert.True(t, res.Hangup)
	assert.Equal(t, "Thanks for your time. Goodbye!", res.Reply)
	assert.Equal(t, 3, supModel.RequestCount(), "the ending turn never consults the classifier")

	st, _ = h.svc.State(ctx, "C1")
	assert.Len(t, st.History, 2*st.TurnCount+1)
	assert.Equal(t, 4, st.TurnCount)
}

func TestHandleTurn_MalformedSkipsTurn(t *testing.T) {
	h := newHarness(t, supervisor.NewRules(supervisor.Policy{}), llm.NewFake("ok"))
	ctx := context.Background()

	for _, u := range []string{"", "   ", "\n\t"} {
		res, err := h.svc.HandleTurn(ctx, "C1", u)
		assert.ErrorIs(t, err, ErrMalformedInbound)
		assert.Nil(t, res)
	}
	_, err := h.svc.HandleTurn(ctx, "", "hello")
	assert.ErrorIs(t, err, ErrMalformedInbound)

	n, err := h.svc.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "malformed input creates no session")
}

func TestHandleTurn_ModelFailureRollsBack(t *testing.T) {
	clients := map[string]llm.Client{
		"provider error": &llm.Fake{Err: errors.New("503 from provider")},
		"timeout":        llm.WithTimeout(&llm.Fake{Reply: "late", Delay: time.Second}, 20*time.Millisecond),
	}
	for name, client := range clients {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, supervisor.NewRules(supervisor.Policy{}), client)
			ctx := context.Background()
			_, err := h.svc.Start(ctx, "C1")
			require.NoError(t, err)

			res, err := h.svc.HandleTurn(ctx, "C1", "Hi, I work at Acme Corp in healthcare")
			require.NoError(t, err)
			assert.True(t, res.Fallback)
			assert.Equal(t, stages.FallbackReply, res.Reply)
			assert.False(t, res.Hangup)

			st, err := h.svc.State(ctx, "C1")
			require.NoError(t, err)
			assert.Equal(t, state.StageGreeting, st.Stage)
			assert.False(t, st.InfoGathered)
			assert.Empty(t, st.CustomerInfo, "extracted facts roll back with the turn")
			assert.Empty(t, st.DiscussedServices)

			assert.Equal(t, 1, st.TurnCount)
			require.Len(t, st.History, 3)
			assert.Equal(t, "Hi, I work at Acme Corp in healthcare", st.History[1].Text)
			assert.Equal(t, stages.FallbackReply, st.History[2].Text)
		})
	}
}

func TestHandleTurn_DiscoveryPassThroughRedirects(t *testing.T) {
	supModel := &llm.Fake{ToolCall: toolCall("gather_information", nil)}
	h := newHarness(t, supervisor.NewModel(supModel, supervisor.Policy{}, nil), llm.NewFake("reply"))
	ctx := context.Background()

	res, err := h.svc.HandleTurn(ctx, "C1", "Hello")
	require.NoError(t, err)
	assert.Equal(t, supervisor.RouteGatherInfo, res.Route)

	res, err = h.svc.HandleTurn(ctx, "C1", "Sure, what else?")
	require.NoError(t, err)
	assert.Equal(t, supervisor.RouteServiceInfo, res.Route)
	assert.Equal(t, state.StagePresentation, res.Stage)
	assert.False(t, res.Fallback)

	st, _ := h.svc.State(ctx, "C1")
	assert.Equal(t, []state.ServiceType{state.ServiceGeneral}, st.DiscussedServices)
}

func TestHandleTurn_CreatesSessionWithoutStart(t *testing.T) {
	h := newHarness(t, supervisor.NewRules(supervisor.Policy{}), llm.NewFake("Nice to meet you"))
	ctx := context.Background()

	res, err := h.svc.HandleTurn(ctx, "C9", "Hi, I'm interested")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Turn)

	st, err := h.svc.State(ctx, "C9")
	require.NoError(t, err)
	assert.False(t, st.Greeted)
	assert.Len(t, st.History, 2)
}

func TestHandleTurn_ExpiredSessionStartsFresh(t *testing.T) {
	h := newHarness(t, supervisor.NewRules(supervisor.Policy{}), llm.NewFake("reply"))
	ctx := context.Background()

	_, err := h.svc.Start(ctx, "X")
	require.NoError(t, err)
	_, err = h.svc.HandleTurn(ctx, "X", "Hi, I'm interested")
	require.NoError(t, err)

	h.clock.Advance(6 * time.Minute)

	_, err = h.sessions.Get(ctx, "X")
	assert.ErrorIs(t, err, store.ErrNotFound)

	res, err := h.svc.HandleTurn(ctx, "X", "Hello again")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Turn)

	st, err := h.svc.State(ctx, "X")
	require.NoError(t, err)
	assert.Len(t, st.History, 2)
	assert.False(t, st.Greeted)
}

type unavailableStore struct {
	store.Store
}

func (unavailableStore) Get(context.Context, string) (*state.ConversationState, error) {
	return nil, fmt.Errorf("get: %w", store.ErrUnavailable)
}

func TestHandleTurn_StoreUnavailable(t *testing.T) {
	registry := stages.NewRegistry(llm.NewFake("ok"), nil, nil)
	svc := New(unavailableStore{store.NewMemoryStore(store.Options{})}, supervisor.NewRules(supervisor.Policy{}), registry, nil, Options{}, nil)

	res, err := svc.HandleTurn(context.Background(), "C1", "hello")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestHandleTurn_TurnLimitEndsCall(t *testing.T) {
	h := newHarness(t, supervisor.NewRules(supervisor.Policy{MaxTurns: 2}), llm.NewFake("reply"))
	ctx := context.Background()

	for i := range 2 {
		res, err := h.svc.HandleTurn(ctx, "C1", "Tell me about DevOps")
		require.NoError(t, err)
		assert.False(t, res.Hangup, "turn %d", i+1)
	}
	res, err := h.svc.HandleTurn(ctx, "C1", "And testing?")
	require.NoError(t, err)
	assert.Equal(t, supervisor.RouteEnd, res.Route)
	assert.True(t, res.Hangup)
}

func TestHandleTurn_SerializesPerCall(t *testing.T) {
	h := newHarness(t, supervisor.NewRules(supervisor.Policy{}), &llm.Fake{Reply: "reply", Delay: 2 * time.Millisecond})
	ctx := context.Background()

	const perCall = 20
	calls := []string{"C1", "C2", "C3"}

	var wg sync.WaitGroup
	for _, id := range calls {
		for i := range perCall {
			wg.Go(func() {
				_, err := h.svc.HandleTurn(ctx, id, fmt.Sprintf("utterance %d", i))
				assert.NoError(t, err)
			})
		}
	}
	wg.Wait()

	for _, id := range calls {
		st, err := h.svc.State(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, perCall, st.TurnCount, id)
		assert.Len(t, st.History, 2*perCall, id)
	}
	assert.Zero(t, h.svc.locks.size(), "lock entries are released")
}

func TestEnd_WaitsForInFlightTurn(t *testing.T) {
	h := newHarness(t, supervisor.NewRules(supervisor.Policy{}), &llm.Fake{Reply: "slow reply", Delay: 200 * time.Millisecond})
	ctx := context.Background()

	_, err := h.svc.Start(ctx, "C1")
	require.NoError(t, err)

	turnDone := make(chan struct{})
	go func() {
		defer close(turnDone)
		res, err := h.svc.HandleTurn(ctx, "C1", "Hi, I'm interested")
		assert.NoError(t, err)
		assert.Equal(t, "slow reply", res.Reply)
	}()

	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	require.NoError(t, h.svc.End(ctx, "C1"))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond, "End waits for the in-flight turn")

	select {
	case <-turnDone:
	case <-time.After(time.Second):
		t.Fatal("turn never finished")
	}

	_, err = h.svc.State(ctx, "C1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEnd_Idempotent(t *testing.T) {
	h := newHarness(t, supervisor.NewRules(supervisor.Policy{}), llm.NewFake("ok"))
	ctx := context.Background()

	assert.NoError(t, h.svc.End(ctx, "nobody"))

	_, err := h.svc.Start(ctx, "C1")
	require.NoError(t, err)
	assert.NoError(t, h.svc.End(ctx, "C1"))
	assert.NoError(t, h.svc.End(ctx, "C1"))

	n, err := h.svc.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSubscribe_ReceivesCallLifecycle(t *testing.T) {
	h := newHarness(t, supervisor.NewRules(supervisor.Policy{}), llm.NewFake("Nice to meet you"))
	ctx := t.Context()

	events, err := h.svc.Subscribe(ctx, AllCalls)
	require.NoError(t, err)

	_, err = h.svc.Start(ctx, "C1")
	require.NoError(t, err)
	_, err = h.svc.HandleTurn(ctx, "C1", "Hi, I'm interested")
	require.NoError(t, err)
	require.NoError(t, h.svc.End(ctx, "C1"))

	var kinds []EventKind
	for range 3 {
		select {
		case e := <-events:
			kinds = append(kinds, e.Kind)
			if e.Kind == EventTurn {
				assert.Equal(t, "Hi, I'm interested", e.Utterance)
				assert.Equal(t, "Nice to meet you", e.Reply)
				assert.Equal(t, supervisor.RouteGatherInfo, e.Route)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
	assert.Equal(t, []EventKind{EventStarted, EventTurn, EventEnded}, kinds)
}

func TestSubscribe_DisabledWithoutBroadcaster(t *testing.T) {
	registry := stages.NewRegistry(llm.NewFake("ok"), nil, nil)
	svc := New(store.NewMemoryStore(store.Options{}), supervisor.NewRules(supervisor.Policy{}), registry, nil, Options{}, nil)

	_, err := svc.Subscribe(context.Background(), AllCalls)
	assert.Error(t, err)
}

func TestHandleTurn_Invariants(t *testing.T) {
	script := []string{
		"Hi, I'm interested",
		"I'm the CTO at a retail company",
		"What can you do with AI?",
		"Tell me about AI again",
		"We are struggling with slow deployments",
		"What would the budget look like?",
		"Hmm",
		"I need to call back later",
		"One more thing about blockchain",
		"Hello?",
	}
	h := newHarness(t, supervisor.NewRules(supervisor.Policy{MaxTurns: 15}), llm.NewFake("reply"))
	ctx := context.Background()

	_, err := h.svc.Start(ctx, "C1")
	require.NoError(t, err)

	var (
		gathered  bool
		shouldEnd bool
	)
	for i, u := range script {
		res, err := h.svc.HandleTurn(ctx, "C1", u)
		require.NoError(t, err, "turn %d", i+1)

		if shouldEnd {
			assert.Equal(t, supervisor.RouteEnd, res.Route, "turn %d after should_end", i+1)
		}

		st, err := h.svc.State(ctx, "C1")
		require.NoError(t, err)
		assert.Len(t, st.History, 2*st.TurnCount+1, "turn %d", i+1)
		if gathered {
			assert.True(t, st.InfoGathered, "info gathered never resets")
		}
		seen := map[state.ServiceType]bool{}
		for _, s := range st.DiscussedServices {
			assert.False(t, seen[s], "duplicate discussed service %s", s)
			seen[s] = true
		}
		gathered = st.InfoGathered
		shouldEnd = st.ShouldEnd
	}
}
