// ABOUTME: Client decorator bounding every model call with a deadline
// ABOUTME: Deadline overruns surface as ErrTimeout regardless of provider

package llm

import (
	"context"
	"time"
)

type timeoutClient struct {
	next    Client
	timeout time.Duration
}

// WithTimeout wraps c so every call runs under a deadline of d.
// A non-positive d returns c unchanged.
func WithTimeout(c Client, d time.Duration) Client {
	if d <= 0 {
		return c
	}
	return &timeoutClient{next: c, timeout: d}
}

func (t *timeoutClient) Invoke(ctx context.Context, system []string, history []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	reply, err := t.next.Invoke(ctx, system, history)
	if err != nil {
		return "", classify(ctx, "invoke", err)
	}
	return reply, nil
}

func (t *timeoutClient) InvokeWithTools(ctx context.Context, system []string, history []Message, tools []Tool) (*ToolCall, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	call, err := t.next.InvokeWithTools(ctx, system, history, tools)
	if err != nil {
		return nil, classify(ctx, "invoke with tools", err)
	}
	return call, nil
}
