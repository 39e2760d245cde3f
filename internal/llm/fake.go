// ABOUTME: Scriptable in-process Client for tests and offline simulation
// ABOUTME: Replays queued replies and tool calls and records every request

package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// FakeRequest records one call made to a Fake.
type FakeRequest struct {
	System  []string
	History []Message
	Tools   []Tool
}

// Fake is a Client whose answers are scripted.
//
// Replies are consumed in order; once exhausted, Reply is returned. Tool
// calls work the same way with ToolCalls and ToolCall. A non-nil Err fails
// every call. A positive Delay blocks each call until it elapses or ctx ends.
type Fake struct {
	mu sync.Mutex

	Replies   []string
	Reply     string
	ToolCalls []*ToolCall
	ToolCall  *ToolCall
	Err       error
	Delay     time.Duration

	Requests []FakeRequest
}

// NewFake returns a Fake that always replies with reply and never calls a tool.
func NewFake(reply string) *Fake {
	return &Fake{Reply: reply}
}

func (f *Fake) wait(ctx context.Context) error {
	if f.Delay <= 0 {
		return nil
	}
	timer := time.NewTimer(f.Delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Invoke returns the next scripted reply.
func (f *Fake) Invoke(ctx context.Context, system []string, history []Message) (string, error) {
	f.mu.Lock()
	f.Requests = append(f.Requests, FakeRequest{System: system, History: history})
	err := f.Err
	var reply string
	if len(f.Replies) > 0 {
		reply, f.Replies = f.Replies[0], f.Replies[1:]
	} else {
		reply = f.Reply
	}
	f.mu.Unlock()

	if err := f.wait(ctx); err != nil {
		return "", classify(ctx, "fake invoke", err)
	}
	if err != nil {
		return "", classify(ctx, "fake invoke", err)
	}
	if reply == "" {
		return "", classify(ctx, "fake invoke", errors.New("empty reply"))
	}
	return reply, nil
}

// InvokeWithTools returns the next scripted tool call.
func (f *Fake) InvokeWithTools(ctx context.Context, system []string, history []Message, tools []Tool) (*ToolCall, error) {
	f.mu.Lock()
	f.Requests = append(f.Requests, FakeRequest{System: system, History: history, Tools: tools})
	err := f.Err
	var call *ToolCall
	if len(f.ToolCalls) > 0 {
		call, f.ToolCalls = f.ToolCalls[0], f.ToolCalls[1:]
	} else {
		call = f.ToolCall
	}
	f.mu.Unlock()

	if err := f.wait(ctx); err != nil {
		return nil, classify(ctx, "fake invoke with tools", err)
	}
	if err != nil {
		return nil, classify(ctx, "fake invoke with tools", err)
	}
	return call, nil
}

// RequestCount returns how many calls were made.
func (f *Fake) RequestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Requests)
}

// LastRequest returns the most recent call, or the zero value.
func (f *Fake) LastRequest() FakeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Requests) == 0 {
		return FakeRequest{}
	}
	return f.Requests[len(f.Requests)-1]
}

// Ensure Fake implements Client
var _ Client = (*Fake)(nil)
