// ABOUTME: ConversationRelay WebSocket handler carrying transcripts and replies as JSON
// ABOUTME: Maps setup, prompt and close onto call start, turns and call end

package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/coven-voice/internal/conversation"
)

const relayReadLimit = 64 * 1024

// relayInbound is any message Twilio sends on the relay socket.
type relayInbound struct {
	Type string `json:"type"`

	// setup
	SessionID string `json:"sessionId"`
	CallSid   string `json:"callSid"`
	From      string `json:"from"`
	To        string `json:"to"`

	// prompt
	VoicePrompt string `json:"voicePrompt"`
	Lang        string `json:"lang"`
	Last        bool   `json:"last"`

	// interrupt
	UtteranceUntilInterrupt  string `json:"utteranceUntilInterrupt"`
	DurationUntilInterruptMs int    `json:"durationUntilInterruptMs"`

	// dtmf
	Digit string `json:"digit"`

	// error
	Description string `json:"description"`
}

// relayText is a reply sent back for text-to-speech.
type relayText struct {
	Type  string `json:"type"`
	Token string `json:"token"`
	Last  bool   `json:"last"`
}

// relayEnd asks Twilio to end the session.
type relayEnd struct {
	Type        string `json:"type"`
	HandoffData string `json:"handoffData,omitempty"`
}

// Relay serves the ConversationRelay WebSocket.
type Relay struct {
	turns    Turns
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewRelay creates the relay handler.
func NewRelay(turns Turns, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		turns: turns,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.With("component", "relay"),
	}
}

// relaySession is one WebSocket's call.
type relaySession struct {
	conn    *websocket.Conn
	callSid string
	pending strings.Builder
}

// ServeHTTP upgrades the connection and runs the call until the socket closes.
func (rl *Relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := rl.upgrader.Upgrade(w, r, nil)
	if err != nil {
		rl.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(relayReadLimit)

	s := &relaySession{conn: conn}
	defer func() {
		_ = conn.Close()
		if s.callSid == "" {
			return
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 10*time.Second)
		defer cancel()
		if err := rl.turns.End(ctx, s.callSid); err != nil {
			rl.logger.Error("ending relay call failed", "call_sid", s.callSid, "error", err)
		}
	}()

	ctx := r.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				rl.logger.Debug("relay read ended", "call_sid", s.callSid, "error", err)
			}
			return
		}

		var msg relayInbound
		if err := json.Unmarshal(data, &msg); err != nil {
			rl.logger.Warn("invalid relay message", "call_sid", s.callSid, "error", err)
			continue
		}
		if done := rl.handle(ctx, s, &msg); done {
			return
		}
	}
}

// handle processes one message and reports whether the session is over.
func (rl *Relay) handle(ctx context.Context, s *relaySession, msg *relayInbound) bool {
	switch msg.Type {
	case "setup":
		s.callSid = msg.CallSid
		if _, err := rl.turns.Start(ctx, s.callSid); err != nil {
			rl.logger.Error("starting relay call failed", "call_sid", s.callSid, "error", err)
			rl.send(s, relayText{Type: "text", Token: failureText, Last: true})
			rl.send(s, relayEnd{Type: "end"})
			return true
		}
		rl.logger.Info("relay call connected", "call_sid", s.callSid, "from", msg.From, "session_id", msg.SessionID)

	case "prompt":
		if s.callSid == "" {
			rl.logger.Warn("prompt before setup")
			return false
		}
		s.pending.WriteString(msg.VoicePrompt)
		if !msg.Last {
			return false
		}
		utterance := s.pending.String()
		s.pending.Reset()
		return rl.turn(ctx, s, utterance)

	case "interrupt":
		rl.logger.Debug("caller interrupted", "call_sid", s.callSid,
			"heard", msg.UtteranceUntilInterrupt,
			"after_ms", msg.DurationUntilInterruptMs)

	case "dtmf":
		rl.logger.Debug("dtmf received", "call_sid", s.callSid, "digit", msg.Digit)

	case "error":
		rl.logger.Warn("relay error", "call_sid", s.callSid, "description", msg.Description)

	default:
		rl.logger.Debug("unhandled relay message", "call_sid", s.callSid, "type", msg.Type)
	}
	return false
}

func (rl *Relay) turn(ctx context.Context, s *relaySession, utterance string) bool {
	res, err := rl.turns.HandleTurn(ctx, s.callSid, utterance)
	switch {
	case errors.Is(err, conversation.ErrMalformedInbound):
		return false
	case err != nil:
		rl.logger.Error("relay turn failed", "call_sid", s.callSid, "error", err)
		rl.send(s, relayText{Type: "text", Token: failureText, Last: true})
		rl.send(s, relayEnd{Type: "end"})
		return true
	}

	if !rl.send(s, relayText{Type: "text", Token: res.Reply, Last: true}) {
		return true
	}
	if res.Hangup {
		rl.send(s, relayEnd{Type: "end"})
		return true
	}
	return false
}

func (rl *Relay) send(s *relaySession, msg any) bool {
	if err := s.conn.WriteJSON(msg); err != nil {
		rl.logger.Warn("relay write failed", "call_sid", s.callSid, "error", err)
		return false
	}
	return true
}
