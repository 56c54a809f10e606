// Package cmd provides CLI commands for campusqa.
//
// Commands:
//   - serve: HTTP API server for the syllabus QA chatbot
//   - seed: index syllabus chunks from a JSON file
//   - token: mint a bearer token for an owner
//   - version: show version information
//
// Signal handling and graceful shutdown are implemented via context
// cancellation.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/campusqa/campusqa/internal/log"
)

var rootCmd = &cobra.Command{
	Use:          "campusqa",
	Short:        "campusqa - syllabus QA chatbot backend",
	Long:         "campusqa answers course questions from indexed syllabus documents\nusing retrieval-augmented generation over HyperCLOVA X.",
	SilenceUsage: true,
}

// Execute is the main entry point for the campusqa CLI.
func Execute() error {
	// Initialize logger once at entry point
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(log.New(log.Config{Level: level}))

	return rootCmd.Execute()
}
