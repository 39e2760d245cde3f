// Package supervisor picks which stage handler answers each caller turn.
//
// A Supervisor looks at the conversation state and returns a Decision. Two
// implementations exist: a model-backed classifier that offers the model a
// fixed tool menu, and a deterministic keyword rule table used for offline
// runs and tests. Both apply the same pre-checks first, so a call that is
// ending or has run past its turn limit always routes to EndCall.
package supervisor
