// Conversational routing agent: answers questions directly or through
// web search, over HTTP and Slack.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "agent",
	Short: "Conversational routing agent serving HTTP and Slack.",
	Long: `agent is a conversational server that classifies each incoming question
and either answers it from model knowledge with per-thread history, or runs
a web search and summarizes the results with images and source links.`,
	RunE:          runServe, // Default to serve mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
