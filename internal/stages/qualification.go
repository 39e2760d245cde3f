// ABOUTME: Qualification stage: asks about timeline, budget and decision process
// ABOUTME: Recomputes the qualified-lead flag from collected answers

package stages

import (
	"context"

	"github.com/2389/coven-voice/internal/prompts"
	"github.com/2389/coven-voice/internal/state"
)

// Qualification checks whether the caller is a good fit.
type Qualification struct {
	base
}

// Handle asks qualification questions.
func (h *Qualification) Handle(ctx context.Context, st *state.ConversationState, utterance string) Result {
	reply, err := h.invoke(ctx, st, utterance, systemBlocks(prompts.Qualification, callerContext(st))...)
	if err != nil {
		return fallback()
	}
	st.Stage = state.StageQualification
	st.IsQualifiedLead = state.Qualified(st.QualificationData)
	return Result{Reply: reply}
}
