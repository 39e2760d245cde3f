// ABOUTME: Caller context blocks shared by the stage prompts
// ABOUTME: Renders known customer info, pain points and discussed services

package stages

import (
	"fmt"
	"strings"

	"github.com/2389/coven-voice/internal/state"
)

var infoLabels = []struct{ key, label string }{
	{state.InfoCompany, "Company"},
	{state.InfoRole, "Role"},
	{state.InfoIndustry, "Industry"},
}

// callerContext renders what is known about the caller, or "" if nothing is.
func callerContext(st *state.ConversationState) string {
	var b strings.Builder
	for _, l := range infoLabels {
		if v := st.CustomerInfo[l.key]; v != "" {
			fmt.Fprintf(&b, "%s: %s\n", l.label, v)
		}
	}
	if len(st.PainPoints) > 0 {
		fmt.Fprintf(&b, "Pain points: %s\n", strings.Join(st.PainPoints, "; "))
	}
	if len(st.DiscussedServices) > 0 {
		names := make([]string, 0, len(st.DiscussedServices))
		for _, s := range st.DiscussedServices {
			names = append(names, string(s))
		}
		fmt.Fprintf(&b, "Already discussed: %s\n", strings.Join(names, ", "))
	}
	if b.Len() == 0 {
		return ""
	}
	return "Customer context:\n" + strings.TrimRight(b.String(), "\n")
}

// systemBlocks drops empty blocks.
func systemBlocks(blocks ...string) []string {
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b != "" {
			out = append(out, b)
		}
	}
	return out
}
