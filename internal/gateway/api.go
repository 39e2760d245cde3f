// ABOUTME: Admin HTTP API for inspecting, placing and driving calls
// ABOUTME: JSON endpoints under /api/calls plus SSE streams of turn events

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/2389/coven-voice/internal/auth"
	"github.com/2389/coven-voice/internal/conversation"
	"github.com/2389/coven-voice/internal/store"
	"github.com/2389/coven-voice/internal/twilio"
)

// maxBodyBytes bounds admin API request bodies.
const maxBodyBytes = 64 * 1024

// sseKeepalive is how often an idle event stream gets a comment line.
var sseKeepalive = 15 * time.Second

// ListCallsResponse is the JSON response for GET /api/calls.
type ListCallsResponse struct {
	Calls []store.Summary `json:"calls"`
	Count int             `json:"count"`
}

// CreateCallRequest is the JSON request body for POST /api/calls.
type CreateCallRequest struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
}

// CreateCallResponse is the JSON response for POST /api/calls.
type CreateCallResponse struct {
	CallSID string `json:"call_sid"`
	Status  string `json:"status"`
	To      string `json:"to"`
}

// StartCallResponse is the JSON response for POST /api/calls/{id}/start.
type StartCallResponse struct {
	CallID   string `json:"call_id"`
	Greeting string `json:"greeting"`
}

// TurnRequest is the JSON request body for POST /api/calls/{id}/turns.
type TurnRequest struct {
	Text string `json:"text"`
}

// handleListCalls handles GET /api/calls.
func (g *Gateway) handleListCalls(w http.ResponseWriter, r *http.Request) {
	calls, err := g.conversation.Active(r.Context())
	if err != nil {
		g.storeError(w, "listing calls", err)
		return
	}
	if calls == nil {
		calls = []store.Summary{}
	}
	g.writeJSON(w, http.StatusOK, ListCallsResponse{Calls: calls, Count: len(calls)})
}

// handleCreateCall handles POST /api/calls by placing an outbound call
// whose voice webhook is this gateway.
func (g *Gateway) handleCreateCall(w http.ResponseWriter, r *http.Request) {
	if g.twilio == nil {
		g.sendJSONError(w, http.StatusServiceUnavailable, "outbound calling is not configured")
		return
	}
	base := g.PublicURL()
	if base == "" {
		g.sendJSONError(w, http.StatusServiceUnavailable, "server.public_url is not configured")
		return
	}

	var req CreateCallRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.To = strings.TrimSpace(req.To)
	if req.To == "" {
		g.sendJSONError(w, http.StatusBadRequest, "to is required")
		return
	}

	call, err := g.twilio.CreateCall(r.Context(), twilio.CallParams{
		To:             req.To,
		From:           req.From,
		URL:            base + twilio.PathVoice,
		StatusCallback: base + twilio.PathStatus,
	})
	if err != nil {
		g.logger.Error("placing call failed", "to", req.To, "error", err)
		var apiErr *twilio.APIError
		if errors.As(err, &apiErr) {
			g.sendJSONError(w, http.StatusBadGateway, apiErr.Message)
			return
		}
		g.sendJSONError(w, http.StatusBadGateway, "twilio request failed")
		return
	}

	g.logger.Info("placed outbound call", "call_sid", call.SID, "to", req.To, "operator", auth.OperatorFrom(r.Context()))
	g.writeJSON(w, http.StatusCreated, CreateCallResponse{CallSID: call.SID, Status: call.Status, To: req.To})
}

// handleGetCall handles GET /api/calls/{id}.
func (g *Gateway) handleGetCall(w http.ResponseWriter, r *http.Request) {
	st, err := g.conversation.State(r.Context(), r.PathValue("id"))
	if err != nil {
		g.storeError(w, "loading call", err)
		return
	}
	g.writeJSON(w, http.StatusOK, st)
}

// handleEndCall handles DELETE /api/calls/{id}. With ?hangup=true and REST
// credentials configured the live phone call is also hung up.
func (g *Gateway) handleEndCall(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("id")

	if r.URL.Query().Get("hangup") == "true" {
		if g.twilio == nil {
			g.sendJSONError(w, http.StatusServiceUnavailable, "outbound calling is not configured")
			return
		}
		if _, err := g.twilio.Hangup(r.Context(), callID); err != nil {
			g.logger.Warn("hanging up call failed", "call_id", callID, "error", err)
			g.sendJSONError(w, http.StatusBadGateway, "twilio request failed")
			return
		}
	}

	if err := g.conversation.End(r.Context(), callID); err != nil {
		g.storeError(w, "ending call", err)
		return
	}
	g.logger.Info("call ended via API", "call_id", callID, "operator", auth.OperatorFrom(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// handleStartCall handles POST /api/calls/{id}/start, opening a text call
// and returning its greeting.
func (g *Gateway) handleStartCall(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("id")
	greeting, err := g.conversation.Start(r.Context(), callID)
	if err != nil {
		g.storeError(w, "starting call", err)
		return
	}
	g.writeJSON(w, http.StatusOK, StartCallResponse{CallID: callID, Greeting: greeting})
}

// handleTurn handles POST /api/calls/{id}/turns, the text transport.
func (g *Gateway) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req TurnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := g.conversation.HandleTurn(r.Context(), r.PathValue("id"), req.Text)
	if err != nil {
		g.storeError(w, "handling turn", err)
		return
	}
	g.writeJSON(w, http.StatusOK, res)
}

// handleCallEvents handles GET /api/calls/{id}/events.
func (g *Gateway) handleCallEvents(w http.ResponseWriter, r *http.Request) {
	g.streamEvents(w, r, r.PathValue("id"))
}

// handleAllEvents handles GET /api/events, the firehose across calls.
func (g *Gateway) handleAllEvents(w http.ResponseWriter, r *http.Request) {
	g.streamEvents(w, r, conversation.AllCalls)
}

// streamEvents writes turn events as SSE until the client goes away or the
// gateway shuts down.
func (g *Gateway) streamEvents(w http.ResponseWriter, r *http.Request, callID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, err := g.conversation.Subscribe(ctx, callID)
	if err != nil {
		g.sendJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	g.writeSSEEvent(w, "subscribed", map[string]string{"call_id": callID})
	flusher.Flush()

	ticker := time.NewTicker(sseKeepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			g.writeSSEEvent(w, string(ev.Kind), ev)
			flusher.Flush()
		}
	}
}

// formatSSEEvent formats an SSE event as a string with the standard format:
// event: <eventType>\ndata: <data>\n\n
func formatSSEEvent(eventType, data string) string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, data)
}

// writeSSEEvent writes a single SSE event to the response writer.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}
	_, _ = fmt.Fprint(w, formatSSEEvent(event, string(dataJSON)))
}

// storeError maps conversation and store errors onto HTTP statuses.
func (g *Gateway) storeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, conversation.ErrMalformedInbound):
		g.sendJSONError(w, http.StatusBadRequest, "call id and text are required")
	case errors.Is(err, store.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, "call not found")
	case errors.Is(err, store.ErrUnavailable):
		g.logger.Error(op+" failed", "error", err)
		g.sendJSONError(w, http.StatusServiceUnavailable, "session store unavailable")
	default:
		g.logger.Error(op+" failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Warn("writing response failed", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.writeJSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}
