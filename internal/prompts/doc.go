// Package prompts holds the static prompt text and the service catalog.
//
// The catalog is embedded YAML and treated as immutable configuration. The
// instruction templates are constants, one per stage plus the supervisor's.
package prompts
