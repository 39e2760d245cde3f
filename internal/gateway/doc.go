// Package gateway hosts the voice agent process.
//
// # Overview
//
// New wires the configured pieces together: the session store, the model
// client, the supervisor, the stage registry and the conversation service.
// It then mounts them behind one HTTP mux. Run opens the listeners, starts
// the idle-session sweeper and blocks until its context ends, then shuts
// everything down within five seconds.
//
// # HTTP
//
//   - GET /health - liveness, always "OK"
//   - GET /health/ready - "ready (N active sessions)", 503 if the store is down
//   - GET /api/calls - live sessions
//   - POST /api/calls - place an outbound call through Twilio
//   - GET /api/calls/{id} - full conversation state
//   - DELETE /api/calls/{id} - end the session (?hangup=true also hangs up)
//   - POST /api/calls/{id}/start - open a text call, returns the greeting
//   - POST /api/calls/{id}/turns - one text turn, returns the TurnResult
//   - GET /api/calls/{id}/events - SSE stream of turn events for one call
//   - GET /api/events - SSE stream for every call
//   - POST /twilio/voice, /twilio/gather, /twilio/status - TwiML webhooks
//   - POST /twilio/relay/voice, GET /twilio/relay/ws - ConversationRelay
//
// /api routes require a bearer JWT when auth.jwt_secret is set. Twilio
// routes are checked against X-Twilio-Signature when
// twilio.validate_signatures is set.
//
// # gRPC
//
// The gRPC listener carries only grpc.health.v1. Both "" and HealthService
// report SERVING while Run is active and NOT_SERVING once shutdown begins.
//
// # Tailscale
//
// With tailscale.enabled the listeners come from a tsnet node instead of
// server.*_addr. tailscale.funnel exposes HTTP publicly on :443 so Twilio
// can reach the webhooks; tailscale.https serves tailnet-only TLS.
package gateway
