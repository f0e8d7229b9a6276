package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/studystim/studystim/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the StudyStim version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "studystim %s (%s/%s)\n", version.Version, runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
