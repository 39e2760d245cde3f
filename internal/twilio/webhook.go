// ABOUTME: Twilio voice webhooks that drive calls through TwiML speech gathers
// ABOUTME: Call setup, gathered speech turns, status callbacks and redelivery replay

package twilio

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/coven-voice/internal/conversation"
	"github.com/2389/coven-voice/internal/dedupe"
)

// IdempotencyHeader is identical across redeliveries of one webhook.
const IdempotencyHeader = "I-Twilio-Idempotency-Token"

const (
	repromptText = "Sorry, I didn't catch that. Could you say that again?"
	failureText  = "I'm sorry, we're having technical difficulties. Please try again later. Goodbye."
)

// Webhook paths.
const (
	PathVoice      = "/twilio/voice"
	PathGather     = "/twilio/gather"
	PathStatus     = "/twilio/status"
	PathRelayVoice = "/twilio/relay/voice"
	PathRelayWS    = "/twilio/relay/ws"
)

// endStatuses are the CallStatus values after which a call is over.
var endStatuses = map[string]bool{
	"completed": true,
	"failed":    true,
	"busy":      true,
	"no-answer": true,
	"canceled":  true,
}

// Turns is the conversation surface the transport drives.
type Turns interface {
	Greeting() string
	Start(ctx context.Context, callID string) (string, error)
	HandleTurn(ctx context.Context, callID, utterance string) (*conversation.TurnResult, error)
	End(ctx context.Context, callID string) error
}

// WebhookConfig configures the webhook handlers.
type WebhookConfig struct {
	// PublicURL prefixes action URLs. Empty uses relative URLs.
	PublicURL string
	Speech    Speech
	// Replay, when set, answers redelivered webhooks from cache.
	Replay *dedupe.Cache
}

// Webhooks serves the Twilio voice webhooks.
type Webhooks struct {
	turns  Turns
	cfg    WebhookConfig
	logger *slog.Logger
}

// NewWebhooks creates the webhook handlers.
func NewWebhooks(turns Turns, cfg WebhookConfig, logger *slog.Logger) *Webhooks {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	return &Webhooks{turns: turns, cfg: cfg, logger: logger.With("component", "twilio")}
}

// Register mounts the webhooks on mux. wrap, if non-nil, wraps every handler.
func (h *Webhooks) Register(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	if wrap == nil {
		wrap = func(next http.Handler) http.Handler { return next }
	}
	mux.Handle("POST "+PathVoice, wrap(h.replay(http.HandlerFunc(h.handleVoice))))
	mux.Handle("POST "+PathGather, wrap(h.replay(http.HandlerFunc(h.handleGather))))
	mux.Handle("POST "+PathStatus, wrap(http.HandlerFunc(h.handleStatus)))
	mux.Handle("POST "+PathRelayVoice, wrap(http.HandlerFunc(h.handleRelayVoice)))
}

func (h *Webhooks) url(path string) string {
	return h.cfg.PublicURL + path
}

func (h *Webhooks) handleVoice(w http.ResponseWriter, r *http.Request) {
	callSid := r.FormValue("CallSid")
	if callSid == "" {
		http.Error(w, "missing CallSid", http.StatusBadRequest)
		return
	}

	greeting, err := h.turns.Start(r.Context(), callSid)
	if err != nil {
		h.logger.Error("starting call failed", "call_sid", callSid, "error", err)
		h.writeTwiML(w, NewResponse().Say(h.cfg.Speech, failureText).Hangup())
		return
	}

	h.logger.Info("incoming call", "call_sid", callSid, "from", r.FormValue("From"), "direction", r.FormValue("Direction"))
	h.writeTwiML(w, h.listen(NewResponse(), greeting))
}

func (h *Webhooks) handleGather(w http.ResponseWriter, r *http.Request) {
	callSid := r.FormValue("CallSid")
	if callSid == "" {
		http.Error(w, "missing CallSid", http.StatusBadRequest)
		return
	}

	res, err := h.turns.HandleTurn(r.Context(), callSid, r.FormValue("SpeechResult"))
	switch {
	case errors.Is(err, conversation.ErrMalformedInbound):
		h.logger.Debug("no speech gathered", "call_sid", callSid)
		h.writeTwiML(w, h.listen(NewResponse(), repromptText))
	case err != nil:
		h.logger.Error("turn failed", "call_sid", callSid, "error", err)
		h.writeTwiML(w, NewResponse().Say(h.cfg.Speech, failureText).Hangup())
	case res.Hangup:
		h.writeTwiML(w, NewResponse().Say(h.cfg.Speech, res.Reply).Hangup())
	default:
		h.writeTwiML(w, h.listen(NewResponse(), res.Reply))
	}
}

// listen speaks prompt inside a speech gather. If the caller stays silent
// the call is redirected back to the gather webhook, which reprompts.
func (h *Webhooks) listen(resp *Response, prompt string) *Response {
	return resp.GatherSpeech(h.cfg.Speech, h.url(PathGather), prompt).Redirect(h.url(PathGather))
}

func (h *Webhooks) handleStatus(w http.ResponseWriter, r *http.Request) {
	callSid := r.FormValue("CallSid")
	status := r.FormValue("CallStatus")
	h.logger.Debug("call status", "call_sid", callSid, "status", status)

	if callSid != "" && endStatuses[status] {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 10*time.Second)
		defer cancel()
		if err := h.turns.End(ctx, callSid); err != nil {
			h.logger.Error("ending call failed", "call_sid", callSid, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Webhooks) handleRelayVoice(w http.ResponseWriter, r *http.Request) {
	h.writeTwiML(w, NewResponse().ConversationRelay(ConversationRelay{
		URL:             relayURL(h.cfg.PublicURL, r),
		WelcomeGreeting: h.turns.Greeting(),
		Voice:           h.cfg.Speech.Voice,
		Language:        h.cfg.Speech.Language,
	}))
}

// relayURL is the WebSocket URL of the relay endpoint.
func relayURL(publicURL string, r *http.Request) string {
	base := publicURL
	if base == "" {
		base = "https://" + r.Host
	}
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + PathRelayWS
}

func (h *Webhooks) writeTwiML(w http.ResponseWriter, resp *Response) {
	body, err := resp.Render()
	if err != nil {
		h.logger.Error("rendering twiml failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", ContentTypeXML)
	_, _ = w.Write(body)
}

// captureWriter records the status and body written through it.
type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *captureWriter) WriteHeader(status int) {
	c.status = status
	c.ResponseWriter.WriteHeader(status)
}

func (c *captureWriter) Write(p []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(p)
	return c.ResponseWriter.Write(p)
}

// replay answers a redelivered webhook with the first delivery's response.
func (h *Webhooks) replay(next http.Handler) http.Handler {
	if h.cfg.Replay == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(IdempotencyHeader)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		if cached, ok := h.cfg.Replay.Recall(token); ok {
			h.logger.Info("replaying redelivered webhook", "path", r.URL.Path, "token", token)
			w.Header().Set("Content-Type", cached.ContentType)
			_, _ = w.Write(cached.Body)
			return
		}

		cw := &captureWriter{ResponseWriter: w}
		next.ServeHTTP(cw, r)
		if cw.status == http.StatusOK {
			h.cfg.Replay.Remember(token, dedupe.Response{
				ContentType: w.Header().Get("Content-Type"),
				Body:        cw.body.Bytes(),
			})
		}
	})
}
