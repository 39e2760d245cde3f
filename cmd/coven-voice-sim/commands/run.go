// ABOUTME: The run and new commands: replay a script and write a starter script
// ABOUTME: Prints a colored transcript and fails when expectations are missed

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/2389/coven-voice/internal/conversation"
)

var (
	runURL   string
	runToken string
)

var runCmd = &cobra.Command{
	Use:   "run <script.toml>",
	Short: "Replay a call script",
	Long: `Replay a call script and print the transcript.

Without --url the call runs in-process. With --url it is sent to a running
coven-voice through POST /api/calls/{id}/start and /turns.

Examples:
  coven-voice-sim run retail.toml
  coven-voice-sim run --url http://127.0.0.1:8080 --token $COVEN_VOICE_TOKEN retail.toml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		script, err := LoadScript(args[0])
		if err != nil {
			return err
		}

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

		var d driver
		if runURL != "" {
			token := runToken
			if token == "" {
				token = os.Getenv("COVEN_VOICE_TOKEN")
			}
			d = newHTTPDriver(runURL, token)
		} else {
			d = newOfflineDriver(script, logger)
		}

		return runScript(cmd.Context(), d, script, cmd.OutOrStdout())
	},
}

var newCmd = &cobra.Command{
	Use:   "new <script.toml>",
	Short: "Write an example call script",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(args[0]); err == nil {
			return fmt.Errorf("%s already exists", args[0])
		}
		if err := os.WriteFile(args[0], []byte(exampleScript), 0644); err != nil {
			return fmt.Errorf("writing script: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runURL, "url", "", "base URL of a running coven-voice (offline when empty)")
	runCmd.Flags().StringVar(&runToken, "token", "", "admin API bearer token (default $COVEN_VOICE_TOKEN)")
}

// errExpectations is returned when a script ran but some checks failed.
var errExpectations = errors.New("expectations failed")

func runScript(ctx context.Context, d driver, s *Script, out io.Writer) error {
	callID := s.CallID
	if callID == "" {
		callID = "sim-" + uuid.New().String()
	}

	agent := color.New(color.FgCyan)
	caller := color.New(color.FgGreen)
	meta := color.New(color.FgHiBlack)
	fail := color.New(color.FgRed)

	title := s.Name
	if title == "" {
		title = callID
	}
	_, _ = meta.Fprintf(out, "=== %s (%s)\n", title, callID)

	greeting, err := d.Start(ctx, callID)
	if err != nil {
		return err
	}
	_, _ = agent.Fprint(out, "agent:  ")
	_, _ = fmt.Fprintln(out, greeting)

	failures := 0
	hungUp := false
	for i, t := range s.Turns {
		if hungUp {
			_, _ = meta.Fprintf(out, "--- call ended, skipping %d remaining turn(s)\n", len(s.Turns)-i)
			break
		}

		_, _ = caller.Fprint(out, "caller: ")
		_, _ = fmt.Fprintln(out, t.Say)

		res, err := d.Turn(ctx, callID, t.Say)
		if err != nil {
			return fmt.Errorf("turn %d: %w", i+1, err)
		}
		_, _ = agent.Fprint(out, "agent:  ")
		_, _ = fmt.Fprintln(out, res.Reply)

		tags := []string{string(res.Route), string(res.Stage)}
		if res.Fallback {
			tags = append(tags, "fallback")
		}
		if res.Hangup {
			tags = append(tags, "hangup")
		}
		_, _ = meta.Fprintf(out, "        [%s]\n", strings.Join(tags, " "))

		for _, msg := range checkTurn(t, res) {
			failures++
			_, _ = fail.Fprintf(out, "        ✗ turn %d: %s\n", i+1, msg)
		}
		hungUp = res.Hangup
	}

	if err := d.End(ctx, callID); err != nil {
		return err
	}

	if failures > 0 {
		return fmt.Errorf("%w: %d", errExpectations, failures)
	}
	_, _ = meta.Fprintf(out, "=== ok, %d turn(s)\n", len(s.Turns))
	return nil
}

// checkTurn returns one message per unmet expectation.
func checkTurn(t Turn, res *conversation.TurnResult) []string {
	var msgs []string
	if t.ExpectRoute != "" && string(res.Route) != t.ExpectRoute {
		msgs = append(msgs, fmt.Sprintf("route %q, want %q", res.Route, t.ExpectRoute))
	}
	if t.ExpectStage != "" && string(res.Stage) != t.ExpectStage {
		msgs = append(msgs, fmt.Sprintf("stage %q, want %q", res.Stage, t.ExpectStage))
	}
	if t.ExpectHangup != nil && res.Hangup != *t.ExpectHangup {
		msgs = append(msgs, fmt.Sprintf("hangup %t, want %t", res.Hangup, *t.ExpectHangup))
	}
	if t.ExpectContains != "" && !strings.Contains(strings.ToLower(res.Reply), strings.ToLower(t.ExpectContains)) {
		msgs = append(msgs, fmt.Sprintf("reply does not contain %q", t.ExpectContains))
	}
	return msgs
}
