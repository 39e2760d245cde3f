// ABOUTME: Discovery stage: learns who the caller is
// ABOUTME: Runs once per call; later routes pass through to service info

package stages

import (
	"context"

	"github.com/2389/coven-voice/internal/prompts"
	"github.com/2389/coven-voice/internal/state"
)

// Discovery asks about the caller's company, role and challenges.
type Discovery struct {
	base
}

// Handle passes through when discovery already happened.
func (h *Discovery) Handle(ctx context.Context, st *state.ConversationState, utterance string) Result {
	if st.InfoGathered {
		return Result{PassThrough: true}
	}
	reply, err := h.invoke(ctx, st, utterance, prompts.Discovery)
	if err != nil {
		return fallback()
	}
	st.InfoGathered = true
	st.Stage = state.StageDiscovery
	return Result{Reply: reply}
}
