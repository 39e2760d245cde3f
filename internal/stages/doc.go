// Package stages implements the five conversation stage handlers.
//
// Each handler makes one model call built from its fixed instructions,
// context drawn from the conversation state, and the caller's latest
// utterance. A handler changes state only after the model answers; on any
// model failure it returns the fixed apology with Fallback set and leaves
// the state untouched.
//
// The package also holds the fact extractor that fills customer info, pain
// points and qualification answers from what the caller says.
package stages
