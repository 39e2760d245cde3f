// ABOUTME: TOML call scripts for the simulator
// ABOUTME: Caller lines, per-turn expectations and scripted model replies

package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Script is one simulated call.
type Script struct {
	Name     string `toml:"name"`
	CallID   string `toml:"call_id"`
	Greeting string `toml:"greeting"`
	// MaxTurns overrides the turn limit in offline mode.
	MaxTurns int `toml:"max_turns"`
	// Replies are what the offline model says, in order. Once exhausted
	// the model repeats DefaultReply.
	Replies      []string `toml:"replies"`
	DefaultReply string   `toml:"default_reply"`
	Turns        []Turn   `toml:"turn"`
}

// Turn is one caller utterance and what the agent is expected to do with it.
// Empty expectations are not checked.
type Turn struct {
	Say          string `toml:"say"`
	ExpectRoute  string `toml:"expect_route"`
	ExpectStage  string `toml:"expect_stage"`
	ExpectHangup *bool  `toml:"expect_hangup"`
	// ExpectContains is a case-insensitive substring of the reply.
	ExpectContains string `toml:"expect_contains"`
}

const defaultSimReply = "Thanks for sharing that. Could you tell me a little more?"

// LoadScript reads and validates a script file.
func LoadScript(path string) (*Script, error) {
	var s Script
	md, err := toml.DecodeFile(path, &s)
	if err != nil {
		return nil, fmt.Errorf("parsing script %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parsing script %s: unknown key %s", path, undecoded[0])
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("script %s: %w", path, err)
	}
	return &s, nil
}

// Validate checks that every turn has something to say.
func (s *Script) Validate() error {
	if len(s.Turns) == 0 {
		return errors.New("no [[turn]] entries")
	}
	for i, t := range s.Turns {
		if strings.TrimSpace(t.Say) == "" {
			return fmt.Errorf("turn %d: say is empty", i+1)
		}
	}
	if s.DefaultReply == "" {
		s.DefaultReply = defaultSimReply
	}
	return nil
}

// exampleScript is written by `coven-voice-sim new`.
const exampleScript = `# coven-voice-sim call script
name = "retail lead"
# call_id = "sim-retail-1"   # random when omitted

# Offline model replies, spoken by whichever stage handles the turn.
replies = [
  "Great to meet you. What does your company do, and what are you hoping to improve?",
  "For retail we often build churn prediction and demand forecasting. Would that help?",
  "Thanks for your time today. Have a great day!",
]

[[turn]]
say = "Hi, we run a chain of grocery stores."
expect_route = "gather_information"

[[turn]]
say = "We want to use AI to forecast demand."

[[turn]]
say = "No thanks, goodbye."
expect_route = "end_call"
expect_hangup = true
`
