// ABOUTME: Service-info stage: presents catalog services tailored to the caller
// ABOUTME: Focuses on the supervisor's selected category and records it as discussed

package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389/coven-voice/internal/prompts"
	"github.com/2389/coven-voice/internal/state"
)

// ServiceInfo describes services from the catalog.
type ServiceInfo struct {
	base
	catalog *prompts.Catalog
}

// Handle presents the pending service type, General when none was chosen.
func (h *ServiceInfo) Handle(ctx context.Context, st *state.ConversationState, utterance string) Result {
	selected := st.PendingService
	if selected == "" {
		selected = state.ServiceGeneral
	}

	reply, err := h.invoke(ctx, st, utterance, prompts.RenderServiceInfo(h.services(st, selected)))
	if err != nil {
		return fallback()
	}
	st.MarkDiscussed(selected)
	st.Stage = state.StagePresentation
	return Result{Reply: reply}
}

func (h *ServiceInfo) services(st *state.ConversationState, selected state.ServiceType) string {
	var b strings.Builder
	b.WriteString(h.catalog.Format())
	if cc := callerContext(st); cc != "" {
		b.WriteString("\n\n")
		b.WriteString(cc)
	}
	fmt.Fprintf(&b, "\n\nFocus on: %s", selected)
	if cat, ok := h.catalog.CategoryFor(selected); ok {
		b.WriteString("\n")
		b.WriteString(cat.Detail(st.CustomerInfo[state.InfoIndustry]))
	}
	return b.String()
}
