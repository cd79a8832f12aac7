package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spigell/cv-classifier/internal/classifier"
)

// Actual version can be specified in build command.
var version = "unknown"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and the supported algorithms",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s version: %s\n", app, version)
		for _, a := range classifier.Algorithms() {
			fmt.Fprintf(cmd.OutOrStdout(), "  %-20s %s\n", a, a.DisplayName())
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
