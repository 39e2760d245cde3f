// ABOUTME: Turn events published for live observers of calls
// ABOUTME: One event per call start, turn and end

package conversation

import (
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-voice/internal/state"
	"github.com/2389/coven-voice/internal/supervisor"
)

// EventKind labels a TurnEvent.
type EventKind string

const (
	EventStarted EventKind = "call.started"
	EventTurn    EventKind = "call.turn"
	EventEnded   EventKind = "call.ended"
)

// TurnEvent describes one change to a call.
type TurnEvent struct {
	ID        string           `json:"id"`
	Kind      EventKind        `json:"kind"`
	CallID    string           `json:"call_id"`
	Turn      int              `json:"turn"`
	Utterance string           `json:"utterance,omitempty"`
	Reply     string           `json:"reply,omitempty"`
	Route     supervisor.Route `json:"route,omitempty"`
	Stage     state.Stage      `json:"stage"`
	Fallback  bool             `json:"fallback,omitempty"`
	Hangup    bool             `json:"hangup,omitempty"`
	At        time.Time        `json:"at"`
}

func newEvent(kind EventKind, st *state.ConversationState) *TurnEvent {
	return &TurnEvent{
		ID:     uuid.New().String(),
		Kind:   kind,
		CallID: st.CallID,
		Turn:   st.TurnCount,
		Stage:  st.Stage,
		At:     time.Now(),
	}
}
