// ABOUTME: End stage: says goodbye
// ABOUTME: The controller marks the stage ended once this handler runs

package stages

import (
	"context"

	"github.com/2389/coven-voice/internal/prompts"
	"github.com/2389/coven-voice/internal/state"
)

// End closes the call.
type End struct {
	base
}

// Handle produces the closing statement.
func (h *End) Handle(ctx context.Context, st *state.ConversationState, utterance string) Result {
	reply, err := h.invoke(ctx, st, utterance, prompts.End)
	if err != nil {
		return fallback()
	}
	st.ShouldEnd = true
	return Result{Reply: reply}
}
