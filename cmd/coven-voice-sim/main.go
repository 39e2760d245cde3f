// ABOUTME: Entry point for coven-voice-sim, the scripted call simulator
// ABOUTME: Delegates to the cobra command tree in the commands package

// Command coven-voice-sim replays scripted calls against a running
// coven-voice or an in-process controller.
//
// Usage:
//
//	coven-voice-sim run script.toml                  # offline, rule supervisor
//	coven-voice-sim run --url http://127.0.0.1:8080 script.toml
package main

import (
	"fmt"
	"os"

	"github.com/2389/coven-voice/cmd/coven-voice-sim/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
