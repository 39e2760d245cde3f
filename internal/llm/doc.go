// Package llm provides the language-model clients used for routing and reply generation.
//
// Client has two calls: Invoke for a plain text reply and InvokeWithTools
// for choosing one entry from a function menu. Failures are always wrapped
// in ErrTimeout or ErrProvider so callers can degrade without inspecting
// provider-specific errors.
//
// OpenAI covers OpenAI and Groq (through Groq's OpenAI-compatible endpoint).
// Gemini uses google.golang.org/genai. WithTimeout bounds every call, and
// Fake scripts answers for tests and offline runs.
package llm
