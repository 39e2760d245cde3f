// ABOUTME: Tool menu offered to the routing model
// ABOUTME: One function per route with JSON schemas built by jsonschema-go

package supervisor

import (
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/2389/coven-voice/internal/llm"
	"github.com/2389/coven-voice/internal/state"
)

func noArgs() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object", Properties: map[string]*jsonschema.Schema{}}
}

func serviceTypeArgs() *jsonschema.Schema {
	enum := make([]any, 0, len(state.ServiceTypes))
	for _, st := range state.ServiceTypes {
		enum = append(enum, string(st))
	}
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"service_type": {
				Type:        "string",
				Description: "Service category to present",
				Enum:        enum,
			},
		},
	}
}

// Tools returns the classifier's menu, one tool per route.
func Tools() []llm.Tool {
	return []llm.Tool{
		{
			Name:        string(RouteGatherInfo),
			Description: "Gather information about the caller's company, role, industry and challenges.",
			Parameters:  noArgs(),
		},
		{
			Name:        string(RouteServiceInfo),
			Description: "Describe CoffeeBeans services. Set service_type to the category to focus on.",
			Parameters:  serviceTypeArgs(),
		},
		{
			Name:        string(RouteQualify),
			Description: "Ask about timeline, budget and decision process to qualify the lead.",
			Parameters:  noArgs(),
		},
		{
			Name:        string(RouteSchedule),
			Description: "Arrange a follow-up call with the technical team.",
			Parameters:  noArgs(),
		},
		{
			Name:        string(RouteEnd),
			Description: "End the call politely.",
			Parameters:  noArgs(),
		},
	}
}
