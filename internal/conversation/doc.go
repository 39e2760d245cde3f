// Package conversation runs caller turns against the session store.
//
// # Overview
//
// The Service is the turn controller. Transports hand it a call ID and the
// caller's utterance; it returns the text to speak and whether to hang up:
//
//	svc := conversation.New(sessions, sup, registry, events, conversation.Options{}, logger)
//	greeting, _ := svc.Start(ctx, callID)
//	res, err := svc.HandleTurn(ctx, callID, "Hi, I'm interested")
//
// # Turn Algorithm
//
// Each turn runs under a per-call lock:
//
//  1. Load the session, creating it if it is missing or expired
//  2. Append the utterance, count the turn and extract caller facts
//  3. Ask the supervisor for a route
//  4. Run the route's stage handler, redirecting a discovery pass-through
//     to service info
//  5. On a failed model call, restore the pre-turn state but keep the
//     transcript, so the caller hears the apology
//  6. Save the session and publish a TurnEvent
//
// Turns for different calls run concurrently. Only store unavailability
// surfaces as an error; model failures become the fallback reply.
//
// # Event Broadcasting
//
// Every start, turn and end is published on the EventBroadcaster. The admin
// API streams these as server-sent events. Subscribing to AllCalls receives
// events for every call.
package conversation
