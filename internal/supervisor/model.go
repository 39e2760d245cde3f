// ABOUTME: Model-backed supervisor that classifies turns through a tool menu
// ABOUTME: Builds the context block, calls the model and decodes its choice

package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/2389/coven-voice/internal/llm"
	"github.com/2389/coven-voice/internal/prompts"
	"github.com/2389/coven-voice/internal/state"
)

// Model asks a language model to pick the route.
type Model struct {
	client llm.Client
	policy Policy
	logger *slog.Logger
}

// NewModel creates a model-backed supervisor.
func NewModel(client llm.Client, policy Policy, logger *slog.Logger) *Model {
	if logger == nil {
		logger = slog.Default()
	}
	return &Model{client: client, policy: policy, logger: logger}
}

// Decide applies the pre-checks and otherwise classifies with the model.
// Any failure yields a fallback decision; Decide never errors.
func (m *Model) Decide(ctx context.Context, st *state.ConversationState) Decision {
	if d, ok := m.policy.precheck(st); ok {
		return d
	}

	system := []string{prompts.Supervisor, contextBlock(st)}
	call, err := m.client.InvokeWithTools(ctx, system, History(st), Tools())
	if err != nil {
		m.logger.Warn("supervisor classification failed", "call_id", st.CallID, "error", err)
		return Fallback("classifier error")
	}
	if call == nil {
		m.logger.Debug("supervisor made no tool call", "call_id", st.CallID)
		return Fallback("no tool call")
	}

	d := Decode(call.Name, call.Arguments)
	if d.Reason == "" {
		d.Reason = "model"
	}
	m.logger.Debug("supervisor decision", "call_id", st.CallID, "route", d.Route, "service_type", d.ServiceType)
	return d
}

// History converts the transcript into model messages.
func History(st *state.ConversationState) []llm.Message {
	msgs := make([]llm.Message, 0, len(st.History))
	for _, m := range st.History {
		if m.Speaker == state.SpeakerAgent {
			msgs = append(msgs, llm.Assistant(m.Text))
		} else {
			msgs = append(msgs, llm.User(m.Text))
		}
	}
	return msgs
}

func contextBlock(st *state.ConversationState) string {
	var b strings.Builder
	b.WriteString("Current context:\n")
	fmt.Fprintf(&b, "- Turn count: %d\n", st.TurnCount)
	fmt.Fprintf(&b, "- Conversation stage: %s\n", st.Stage)
	fmt.Fprintf(&b, "- Info gathered: %t\n", st.InfoGathered)
	fmt.Fprintf(&b, "- Customer info: %s\n", formatMap(st.CustomerInfo))
	fmt.Fprintf(&b, "- Pain points: %s\n", formatList(st.PainPoints))

	discussed := make([]string, 0, len(st.DiscussedServices))
	for _, s := range st.DiscussedServices {
		discussed = append(discussed, string(s))
	}
	fmt.Fprintf(&b, "- Discussed services: %s", formatList(discussed))
	return b.String()
}

func formatMap(m map[string]string) string {
	if len(m) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+m[k])
	}
	return strings.Join(parts, ", ")
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

// Ensure Model implements Supervisor
var _ Supervisor = (*Model)(nil)
