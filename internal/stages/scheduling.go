// ABOUTME: Scheduling stage: arranges a follow-up and winds the call down
// ABOUTME: Moves the call to closing and flags it to end on the next turn

package stages

import (
	"context"

	"github.com/2389/coven-voice/internal/prompts"
	"github.com/2389/coven-voice/internal/state"
)

// Scheduling proposes a follow-up call.
type Scheduling struct {
	base
}

// Handle offers a follow-up.
func (h *Scheduling) Handle(ctx context.Context, st *state.ConversationState, utterance string) Result {
	reply, err := h.invoke(ctx, st, utterance, systemBlocks(prompts.Scheduling, callerContext(st))...)
	if err != nil {
		return fallback()
	}
	st.Stage = state.StageClosing
	st.ShouldEnd = true
	return Result{Reply: reply}
}
