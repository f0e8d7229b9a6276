package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/studystim/studystim/internal/ui"
	"github.com/studystim/studystim/internal/version"
)

var flagConfig string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "studystim",
	Short: "Study together: shared focus timer, chat and a peer-to-peer call",
	Long: `StudyStim pairs two students in a study room. Members share a countdown
timer and a chat through a small relay server, and talk over a direct WebRTC
call negotiated through the same relay.

Run "studystim serve" to host a relay, then "studystim create" or
"studystim join <room-id>" from each terminal.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Path to a TOML config file")
}
