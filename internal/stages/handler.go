// ABOUTME: Stage handler contract, shared model invocation and the route registry
// ABOUTME: Handlers return a Result; the fixed apology signals a failed model call

package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/coven-voice/internal/llm"
	"github.com/2389/coven-voice/internal/prompts"
	"github.com/2389/coven-voice/internal/state"
	"github.com/2389/coven-voice/internal/supervisor"
)

// FallbackReply is spoken whenever a stage could not produce a reply.
const FallbackReply = "I apologize, but I encountered an error. Could you please repeat that?"

// Result is a handler's outcome for one turn.
type Result struct {
	// Reply is the text to speak. Empty only for a pass-through.
	Reply string
	// Fallback is set when the model call failed and Reply is the apology.
	Fallback bool
	// PassThrough is set when the handler declined the turn.
	PassThrough bool
}

func fallback() Result { return Result{Reply: FallbackReply, Fallback: true} }

// Handler answers one turn for one stage.
type Handler interface {
	Handle(ctx context.Context, st *state.ConversationState, utterance string) Result
}

// base holds what every handler needs to call the model.
type base struct {
	name   string
	client llm.Client
	logger *slog.Logger
}

// invoke sends the system blocks plus the utterance and returns the trimmed reply.
func (b *base) invoke(ctx context.Context, st *state.ConversationState, utterance string, system ...string) (string, error) {
	reply, err := b.client.Invoke(ctx, system, []llm.Message{llm.User(utterance)})
	if err == nil {
		reply = strings.TrimSpace(reply)
		if reply == "" {
			err = fmt.Errorf("%w: empty reply", llm.ErrProvider)
		}
	}
	if err != nil {
		b.logger.Warn("stage model call failed",
			"stage", b.name,
			"call_id", st.CallID,
			"timeout", errors.Is(err, llm.ErrTimeout),
			"error", err,
		)
		return "", err
	}
	return reply, nil
}

// Registry maps each route to its handler.
type Registry struct {
	handlers map[supervisor.Route]Handler
}

// NewRegistry builds the fixed route table.
func NewRegistry(client llm.Client, catalog *prompts.Catalog, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if catalog == nil {
		catalog = prompts.DefaultCatalog()
	}
	mk := func(name string) base {
		return base{name: name, client: client, logger: logger}
	}
	return &Registry{handlers: map[supervisor.Route]Handler{
		supervisor.RouteGatherInfo:  &Discovery{base: mk("discovery")},
		supervisor.RouteServiceInfo: &ServiceInfo{base: mk("service_info"), catalog: catalog},
		supervisor.RouteQualify:     &Qualification{base: mk("qualification")},
		supervisor.RouteSchedule:    &Scheduling{base: mk("scheduling")},
		supervisor.RouteEnd:         &End{base: mk("end")},
	}}
}

// Handler returns the handler for route.
func (r *Registry) Handler(route supervisor.Route) (Handler, bool) {
	h, ok := r.handlers[route]
	return h, ok
}
