// ABOUTME: Turn controller: the single entry point transports use to run calls
// ABOUTME: Serializes turns per call, routes through the supervisor and persists state

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/coven-voice/internal/prompts"
	"github.com/2389/coven-voice/internal/stages"
	"github.com/2389/coven-voice/internal/state"
	"github.com/2389/coven-voice/internal/store"
	"github.com/2389/coven-voice/internal/supervisor"
)

// ErrMalformedInbound is returned for an empty call ID or utterance. The
// turn is skipped without touching the session.
var ErrMalformedInbound = errors.New("malformed inbound utterance")

// Options tune a Service.
type Options struct {
	// Greeting is spoken when a call starts. Empty uses prompts.DefaultGreeting.
	Greeting string
}

// TurnResult is what the transport speaks back.
type TurnResult struct {
	CallID   string           `json:"call_id"`
	Reply    string           `json:"reply"`
	Route    supervisor.Route `json:"route"`
	Stage    state.Stage      `json:"stage"`
	Turn     int              `json:"turn"`
	Fallback bool             `json:"fallback"`
	// Hangup tells the transport to end the call after speaking Reply.
	Hangup bool `json:"hangup"`
}

// Service runs conversations.
type Service struct {
	sessions   store.Store
	supervisor supervisor.Supervisor
	stages     *stages.Registry
	events     *EventBroadcaster
	locks      *callLocks
	greeting   string
	logger     *slog.Logger
}

// New creates a Service. events may be nil.
func New(sessions store.Store, sup supervisor.Supervisor, registry *stages.Registry, events *EventBroadcaster, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	greeting := strings.TrimSpace(opts.Greeting)
	if greeting == "" {
		greeting = prompts.DefaultGreeting
	}
	return &Service{
		sessions:   sessions,
		supervisor: sup,
		stages:     registry,
		events:     events,
		locks:      newCallLocks(),
		greeting:   greeting,
		logger:     logger.With("component", "conversation"),
	}
}

// Greeting returns the configured opening line.
func (s *Service) Greeting() string {
	return s.greeting
}

// Start opens a session for callID and seeds the greeting as its first
// agent entry. A live session is left alone and its greeting returned.
func (s *Service) Start(ctx context.Context, callID string) (string, error) {
	callID = strings.TrimSpace(callID)
	if callID == "" {
		return "", ErrMalformedInbound
	}

	unlock := s.locks.Lock(callID)
	defer unlock()

	st, err := s.sessions.Create(ctx, callID)
	if errors.Is(err, store.ErrAlreadyExists) {
		existing, getErr := s.sessions.Get(ctx, callID)
		if getErr != nil {
			return "", fmt.Errorf("loading session %s: %w", callID, getErr)
		}
		s.logger.Debug("start on live call", "call_id", callID)
		if existing.Greeted && len(existing.History) > 0 {
			return existing.History[0].Text, nil
		}
		return s.greeting, nil
	}
	if err != nil {
		return "", fmt.Errorf("creating session %s: %w", callID, err)
	}

	st.AppendAgent(s.greeting)
	st.Greeted = true
	st.UpdatedAt = time.Now()
	if err := s.sessions.Save(ctx, st); err != nil {
		return "", fmt.Errorf("saving session %s: %w", callID, err)
	}

	s.logger.Info("call started", "call_id", callID)
	s.publish(newEvent(EventStarted, st), func(e *TurnEvent) { e.Reply = s.greeting })
	return s.greeting, nil
}

// HandleTurn runs one caller turn. Only store failures and malformed input
// return errors; model failures produce a Fallback result.
func (s *Service) HandleTurn(ctx context.Context, callID, utterance string) (*TurnResult, error) {
	callID = strings.TrimSpace(callID)
	utterance = strings.TrimSpace(utterance)
	if callID == "" || utterance == "" {
		return nil, ErrMalformedInbound
	}

	unlock := s.locks.Lock(callID)
	defer unlock()

	st, err := s.load(ctx, callID)
	if err != nil {
		return nil, err
	}

	snapshot := st.Clone()
	st.AppendUser(utterance)
	st.TurnCount++
	stages.Extract(utterance).Apply(st)

	decision := s.supervisor.Decide(ctx, st)
	if decision.Route == supervisor.RouteServiceInfo && decision.ServiceType != "" {
		st.PendingService = decision.ServiceType
	}

	route := decision.Route
	res := s.run(ctx, route, st, utterance)
	if res.PassThrough {
		s.logger.Debug("stage passed through", "call_id", callID, "route", route)
		route = supervisor.RouteServiceInfo
		res = s.run(ctx, route, st, utterance)
	}
	if res.PassThrough || res.Reply == "" {
		res = stages.Result{Reply: stages.FallbackReply, Fallback: true}
	}

	if res.Fallback {
		history, turns := st.History, st.TurnCount
		st = snapshot
		st.History, st.TurnCount = history, turns
	} else if route == supervisor.RouteEnd {
		st.Stage = state.StageEnded
	}
	st.AppendAgent(res.Reply)
	st.UpdatedAt = time.Now()

	if err := s.sessions.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("saving session %s: %w", callID, err)
	}

	result := &TurnResult{
		CallID:   callID,
		Reply:    res.Reply,
		Route:    route,
		Stage:    st.Stage,
		Turn:     st.TurnCount,
		Fallback: res.Fallback,
		Hangup:   st.Stage.Terminal(),
	}

	s.logger.Info("turn handled",
		"call_id", callID,
		"turn", result.Turn,
		"route", route,
		"stage", result.Stage,
		"fallback", result.Fallback,
		"decision", decision.Reason,
	)
	s.publish(newEvent(EventTurn, st), func(e *TurnEvent) {
		e.Utterance = utterance
		e.Reply = result.Reply
		e.Route = route
		e.Fallback = result.Fallback
		e.Hangup = result.Hangup
	})
	return result, nil
}

// load fetches the session, creating one when it is missing or expired.
func (s *Service) load(ctx context.Context, callID string) (*state.ConversationState, error) {
	st, err := s.sessions.Get(ctx, callID)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Debug("creating session on first turn", "call_id", callID)
		st, err = s.sessions.Create(ctx, callID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", callID, err)
	}
	return st, nil
}

func (s *Service) run(ctx context.Context, route supervisor.Route, st *state.ConversationState, utterance string) stages.Result {
	h, ok := s.stages.Handler(route)
	if !ok {
		s.logger.Warn("no handler for route", "call_id", st.CallID, "route", route)
		return stages.Result{Reply: stages.FallbackReply, Fallback: true}
	}
	return h.Handle(ctx, st, utterance)
}

// End deletes the session for callID once any in-flight turn finishes.
// Ending an unknown call is not an error.
func (s *Service) End(ctx context.Context, callID string) error {
	unlock := s.locks.Lock(callID)
	defer unlock()

	st, err := s.sessions.Get(ctx, callID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading session %s: %w", callID, err)
	}
	if err := s.sessions.Delete(ctx, callID); err != nil {
		return fmt.Errorf("deleting session %s: %w", callID, err)
	}

	s.logger.Info("call ended",
		"call_id", callID,
		"turns", st.TurnCount,
		"stage", st.Stage,
		"qualified_lead", st.IsQualifiedLead,
		"customer_info", st.CustomerInfo,
		"pain_points", st.PainPoints,
		"discussed_services", st.DiscussedServices,
		"duration", time.Since(st.CreatedAt).Round(time.Second),
	)
	for i, m := range st.History {
		s.logger.Debug("transcript", "call_id", callID, "index", i, "speaker", m.Speaker, "text", m.Text)
	}

	s.publish(newEvent(EventEnded, st), func(e *TurnEvent) { e.Hangup = true })
	return nil
}

// State returns a copy of the session for callID.
func (s *Service) State(ctx context.Context, callID string) (*state.ConversationState, error) {
	return s.sessions.Get(ctx, callID)
}

// Active lists live sessions.
func (s *Service) Active(ctx context.Context) ([]store.Summary, error) {
	return s.sessions.List(ctx)
}

// Count returns the number of live sessions.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.sessions.Count(ctx)
}

// Subscribe streams events for callID, or for every call with AllCalls.
func (s *Service) Subscribe(ctx context.Context, callID string) (<-chan *TurnEvent, error) {
	if s.events == nil {
		return nil, errors.New("event streaming is not enabled")
	}
	ch, _ := s.events.Subscribe(ctx, callID)
	return ch, nil
}

func (s *Service) publish(e *TurnEvent, fill func(*TurnEvent)) {
	if s.events == nil {
		return
	}
	if fill != nil {
		fill(e)
	}
	s.events.Publish(e)
}
