// ABOUTME: Root cobra command and shared flags for coven-voice-sim
// ABOUTME: Exposes Execute for main and the global verbose switch

package commands

import (
	"github.com/spf13/cobra"
)

// version is set by goreleaser at build time.
var version = "dev"

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "coven-voice-sim",
	Short: "Replay scripted sales calls",
	Long: `coven-voice-sim drives the coven-voice conversation controller with
scripted caller utterances and prints the resulting transcript.

Scripts are TOML files. Without --url the call runs in-process with the
rule supervisor and a scripted model, so no API keys are needed.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log controller activity to stderr")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(newCmd)
}
