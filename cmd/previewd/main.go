package main

import (
	"os"

	"github.com/previewkit/previewd/cli"
	"github.com/previewkit/previewd/cmd"
)

func main() {
	rootCmd := cli.NewStandardCommand(
		"previewd",
		"Live-preview session daemon for the visual editor",
	)

	// Add subcommands
	rootCmd.AddCommand(cmd.NewServeCmd())
	rootCmd.AddCommand(cmd.NewSessionsCmd())
	rootCmd.AddCommand(cmd.NewVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
