// Package twilio connects phone calls to the conversation service.
//
// Two call flows are supported. The webhook flow answers Twilio voice
// webhooks with TwiML: the greeting and each reply are spoken with <Say>
// inside a speech <Gather>, whose transcript comes back on the gather
// webhook as the next turn. The relay flow hands the call to a
// ConversationRelay WebSocket, which exchanges transcripts and reply text
// as JSON messages.
//
// The package also holds the TwiML builder, request signature validation
// and a small REST client for placing and hanging up calls.
package twilio
