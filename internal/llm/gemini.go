// ABOUTME: Gemini client via google.golang.org/genai
// ABOUTME: Converts history to genai contents and jsonschema tool menus to genai schemas

package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/genai"
)

// GeminiConfig configures a Gemini client.
type GeminiConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
}

// Gemini talks to the Gemini API.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGemini creates a Gemini client.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{client: client, model: model, temperature: float32(cfg.Temperature)}, nil
}

func (g *Gemini) request(system []string, history []Message) (*genai.GenerateContentConfig, []*genai.Content, error) {
	cfg := &genai.GenerateContentConfig{}
	if len(system) > 0 {
		parts := make([]*genai.Part, 0, len(system))
		for _, s := range system {
			parts = append(parts, genai.NewPartFromText(s))
		}
		cfg.SystemInstruction = &genai.Content{Parts: parts}
	}
	if g.temperature > 0 {
		t := g.temperature
		cfg.Temperature = &t
	}

	contents := geminiContents(history)
	if len(contents) == 0 {
		return nil, nil, fmt.Errorf("%w: no contents", ErrProvider)
	}
	return cfg, contents, nil
}

// callConnected leads histories that open with the agent's greeting, since
// Gemini expects the first turn to come from the user.
const callConnected = "(call connected)"

// geminiContents converts history, merging consecutive entries of one role.
func geminiContents(history []Message) []*genai.Content {
	var (
		contents []*genai.Content
		last     *genai.Content
	)
	for _, m := range history {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		part := genai.NewPartFromText(m.Content)
		if last != nil && last.Role == role {
			last.Parts = append(last.Parts, part)
			continue
		}
		if last == nil && role == "model" {
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{genai.NewPartFromText(callConnected)}})
		}
		last = &genai.Content{Role: role, Parts: []*genai.Part{part}}
		contents = append(contents, last)
	}
	return contents
}

func (g *Gemini) generate(ctx context.Context, op string, cfg *genai.GenerateContentConfig, contents []*genai.Content) (*genai.Candidate, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, classify(ctx, op, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("%s: %w: no candidates", op, ErrProvider)
	}
	return resp.Candidates[0], nil
}

// Invoke returns the concatenated text parts of the first candidate.
func (g *Gemini) Invoke(ctx context.Context, system []string, history []Message) (string, error) {
	cfg, contents, err := g.request(system, history)
	if err != nil {
		return "", err
	}
	cand, err := g.generate(ctx, "generate content", cfg, contents)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		if p.Text != "" {
			sb.WriteString(p.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("generate content: %w: empty reply (finish reason %s)", ErrProvider, cand.FinishReason)
	}
	return text, nil
}

// InvokeWithTools offers the tool menu as function declarations.
func (g *Gemini) InvokeWithTools(ctx context.Context, system []string, history []Message, tools []Tool) (*ToolCall, error) {
	cfg, contents, err := g.request(system, history)
	if err != nil {
		return nil, err
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  geminiSchema(t.Parameters),
		})
	}
	if len(decls) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	cand, err := g.generate(ctx, "tool selection", cfg, contents)
	if err != nil {
		return nil, err
	}
	for _, p := range cand.Content.Parts {
		if p.FunctionCall == nil {
			continue
		}
		args := p.FunctionCall.Args
		if args == nil {
			args = map[string]any{}
		}
		return &ToolCall{Name: p.FunctionCall.Name, Arguments: args}, nil
	}
	return nil, nil
}

// geminiSchema converts a JSON schema to a genai schema. Object schemas
// without properties become nil, which Gemini treats as "no arguments".
func geminiSchema(s *jsonschema.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	if s.Type == "object" && len(s.Properties) == 0 {
		return nil
	}

	gs := &genai.Schema{
		Description: s.Description,
		Required:    s.Required,
		Items:       geminiSchema(s.Items),
	}
	for _, v := range s.Enum {
		gs.Enum = append(gs.Enum, fmt.Sprintf("%v", v))
	}
	if len(s.Properties) > 0 {
		gs.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, prop := range s.Properties {
			gs.Properties[k] = geminiSchema(prop)
		}
	}
	switch s.Type {
	case "object":
		gs.Type = genai.TypeObject
	case "array":
		gs.Type = genai.TypeArray
	case "string":
		gs.Type = genai.TypeString
	case "number":
		gs.Type = genai.TypeNumber
	case "integer":
		gs.Type = genai.TypeInteger
	case "boolean":
		gs.Type = genai.TypeBoolean
	}
	return gs
}

// Ensure Gemini implements Client
var _ Client = (*Gemini)(nil)
