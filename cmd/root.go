// Package cmd provides the command-line interface for inspecting shadow
// engine trace recordings.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use: "gvt",
	Short: "GVT CLI tool inspects the SQLite trace databases written " +
		"while a shadow page-table engine runs.",
	Long: `GVT CLI tool inspects the SQLite trace databases written ` +
		`while a shadow page-table engine runs. It lists the recorded ` +
		`event tables and dumps their contents.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
