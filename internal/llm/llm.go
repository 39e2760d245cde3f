// ABOUTME: Language-model client contract shared by every provider
// ABOUTME: Messages, tool menus, tool calls and distinguishable timeout/provider errors

package llm

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/google/jsonschema-go/jsonschema"
)

// Errors returned by every Client. Use errors.Is to tell them apart.
var (
	ErrTimeout  = errors.New("model timeout")
	ErrProvider = errors.New("model provider error")
)

// Role identifies the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation entry sent to the model.
type Message struct {
	Role    Role
	Content string
}

// User builds a user message.
func User(text string) Message { return Message{Role: RoleUser, Content: text} }

// Assistant builds an assistant message.
func Assistant(text string) Message { return Message{Role: RoleAssistant, Content: text} }

// Tool is one entry of a function-calling menu.
type Tool struct {
	Name        string
	Description string
	// Parameters is the JSON schema of the arguments object. Nil means no arguments.
	Parameters *jsonschema.Schema
}

// ToolCall is the model's choice from a tool menu.
type ToolCall struct {
	Name      string
	Arguments map[string]any
}

// Client is a language-model backend.
type Client interface {
	// Invoke returns the model's text reply to the system prompts and history.
	Invoke(ctx context.Context, system []string, history []Message) (string, error)

	// InvokeWithTools offers the tool menu and returns the first tool call.
	// It returns (nil, nil) when the model answered without calling a tool.
	InvokeWithTools(ctx context.Context, system []string, history []Message, tools []Tool) (*ToolCall, error)
}

// classify maps a transport or API error onto ErrTimeout or ErrProvider.
func classify(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrProvider) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrProvider, err)
}
