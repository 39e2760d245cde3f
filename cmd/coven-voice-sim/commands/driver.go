// ABOUTME: Call drivers for the simulator: in-process controller or remote HTTP API
// ABOUTME: Both expose the same start, turn and end operations

package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2389/coven-voice/internal/config"
	"github.com/2389/coven-voice/internal/conversation"
	"github.com/2389/coven-voice/internal/gateway"
	"github.com/2389/coven-voice/internal/llm"
	"github.com/2389/coven-voice/internal/prompts"
	"github.com/2389/coven-voice/internal/stages"
	"github.com/2389/coven-voice/internal/store"
	"github.com/2389/coven-voice/internal/supervisor"
)

type driver interface {
	Start(ctx context.Context, callID string) (string, error)
	Turn(ctx context.Context, callID, text string) (*conversation.TurnResult, error)
	End(ctx context.Context, callID string) error
}

// offlineDriver runs calls against an in-process controller with the rule
// supervisor and a scripted model.
type offlineDriver struct {
	svc      *conversation.Service
	sessions store.Store
}

func newOfflineDriver(s *Script, logger *slog.Logger) *offlineDriver {
	maxTurns := s.MaxTurns
	if maxTurns == 0 {
		maxTurns = config.DefaultMaxTurns
	}
	model := &llm.Fake{Replies: s.Replies, Reply: s.DefaultReply}
	sessions := store.NewMemoryStore(store.Options{})
	svc := conversation.New(
		sessions,
		supervisor.NewRules(supervisor.Policy{MaxTurns: maxTurns}),
		stages.NewRegistry(model, prompts.DefaultCatalog(), logger),
		nil,
		conversation.Options{Greeting: s.Greeting},
		logger,
	)
	return &offlineDriver{svc: svc, sessions: sessions}
}

func (d *offlineDriver) Start(ctx context.Context, callID string) (string, error) {
	return d.svc.Start(ctx, callID)
}

func (d *offlineDriver) Turn(ctx context.Context, callID, text string) (*conversation.TurnResult, error) {
	return d.svc.HandleTurn(ctx, callID, text)
}

func (d *offlineDriver) End(ctx context.Context, callID string) error {
	if err := d.svc.End(ctx, callID); err != nil {
		return err
	}
	return d.sessions.Close()
}

// httpDriver drives a running coven-voice over its text-turn API.
type httpDriver struct {
	base   string
	token  string
	client *http.Client
}

func newHTTPDriver(base, token string) *httpDriver {
	return &httpDriver{
		base:   strings.TrimRight(base, "/"),
		token:  token,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (d *httpDriver) callURL(callID, suffix string) string {
	return d.base + "/api/calls/" + url.PathEscape(callID) + suffix
}

func (d *httpDriver) Start(ctx context.Context, callID string) (string, error) {
	var resp gateway.StartCallResponse
	if err := d.do(ctx, http.MethodPost, d.callURL(callID, "/start"), nil, &resp); err != nil {
		return "", fmt.Errorf("starting call: %w", err)
	}
	return resp.Greeting, nil
}

func (d *httpDriver) Turn(ctx context.Context, callID, text string) (*conversation.TurnResult, error) {
	var resp conversation.TurnResult
	if err := d.do(ctx, http.MethodPost, d.callURL(callID, "/turns"), gateway.TurnRequest{Text: text}, &resp); err != nil {
		return nil, fmt.Errorf("sending turn: %w", err)
	}
	return &resp, nil
}

func (d *httpDriver) End(ctx context.Context, callID string) error {
	if err := d.do(ctx, http.MethodDelete, d.callURL(callID, ""), nil, nil); err != nil {
		return fmt.Errorf("ending call: %w", err)
	}
	return nil
}

func (d *httpDriver) do(ctx context.Context, method, target string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
