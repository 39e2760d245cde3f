// ABOUTME: OpenAI-compatible chat completions client (OpenAI, Groq) via openai-go
// ABOUTME: Plain replies and auto tool choice over a function menu

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

// GroqBaseURL is Groq's OpenAI-compatible endpoint.
const GroqBaseURL = "https://api.groq.com/openai/v1"

// Default model names per provider.
const (
	DefaultGroqModel   = "llama-3.3-70b-versatile"
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultGeminiModel = "gemini-1.5-flash"
)

// OpenAIConfig configures an OpenAI-compatible client.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	HTTPClient  *http.Client
	MaxRetries  int
}

// OpenAI talks to any OpenAI-compatible chat completions API.
type OpenAI struct {
	client      openai.Client
	model       string
	temperature float64
}

// NewOpenAI creates a client. An empty BaseURL uses the SDK default.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{
		client:      openai.NewClient(opts...),
		model:       model,
		temperature: cfg.Temperature,
	}
}

func (o *OpenAI) params(system []string, history []Message) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(system)+len(history))
	for _, s := range system {
		msgs = append(msgs, openai.SystemMessage(s))
	}
	for _, m := range history {
		switch m.Role {
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	params := openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    o.model,
	}
	if o.temperature > 0 {
		params.Temperature = param.NewOpt(o.temperature)
	}
	return params
}

// Invoke returns the text of the first choice.
func (o *OpenAI) Invoke(ctx context.Context, system []string, history []Message) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, o.params(system, history))
	if err != nil {
		return "", classify(ctx, "chat completion", describeAPIError(err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: %w: no choices", ErrProvider)
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return "", fmt.Errorf("chat completion: %w: refused: %s", ErrProvider, choice.Message.Refusal)
	}
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return "", fmt.Errorf("chat completion: %w: empty reply", ErrProvider)
	}
	return text, nil
}

// InvokeWithTools offers the tool menu with automatic tool choice.
func (o *OpenAI) InvokeWithTools(ctx context.Context, system []string, history []Message, tools []Tool) (*ToolCall, error) {
	params := o.params(system, history)
	for _, t := range tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: param.NewOpt(t.Description),
				Parameters:  functionParameters(t.Parameters),
			},
		})
	}
	params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
		OfAuto: param.NewOpt("auto"),
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classify(ctx, "tool selection", describeAPIError(err))
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("tool selection: %w: no choices", ErrProvider)
	}
	choice := resp.Choices[0]
	if len(choice.Message.ToolCalls) == 0 {
		return nil, nil
	}

	fn := choice.Message.ToolCalls[0].Function
	call := &ToolCall{Name: fn.Name, Arguments: map[string]any{}}
	if strings.TrimSpace(fn.Arguments) != "" {
		if err := json.Unmarshal([]byte(fn.Arguments), &call.Arguments); err != nil {
			return nil, fmt.Errorf("tool selection: %w: decoding arguments for %s: %w", ErrProvider, fn.Name, err)
		}
	}
	return call, nil
}

// functionParameters converts a schema into the SDK's map form. A nil
// schema becomes an empty object schema.
func functionParameters(s *jsonschema.Schema) openai.FunctionParameters {
	if s == nil {
		return openai.FunctionParameters{"type": "object", "properties": map[string]any{}}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var m openai.FunctionParameters
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

// describeAPIError keeps the status code of SDK errors in the message.
func describeAPIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("status %d: %w", apiErr.StatusCode, err)
	}
	return err
}

// Ensure OpenAI implements Client
var _ Client = (*OpenAI)(nil)
