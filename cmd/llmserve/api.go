package main

import (
	"github.com/spf13/cobra"

	"github.com/alphadeepmind/llmserve/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running llmserve server via HTTP.

These commands require a running server (llmserve serve).
Use --server to specify a custom server URL and --key (or $API_KEY)
for the shared request key.

Examples:
  llmserve api health                          # Check server health
  llmserve api generate "What is 2+2?"         # One-shot completion
  llmserve api stream "Explain goroutines"     # Streamed answer
  llmserve api file-task report.pdf -i "列出重點"
  llmserve api llmcalls list --endpoint smart-match -o table`,
}

var llmcallsCmd = &cobra.Command{
	Use:   "llmcalls",
	Short: "LLM call history commands",
}

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Prompt template commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	// Inference, health and docs endpoints at top level of api
	for _, ep := range endpoints.TopLevelCommands() {
		apiCmd.AddCommand(ep.Command(getServerURL))
	}

	// LLM calls as subcommand group
	for _, ep := range endpoints.LLMCallCommands() {
		llmcallsCmd.AddCommand(ep.Command(getServerURL))
	}

	// Prompts as subcommand group
	for _, ep := range endpoints.PromptCommands() {
		promptsCmd.AddCommand(ep.Command(getServerURL))
	}

	apiCmd.AddCommand(llmcallsCmd)
	apiCmd.AddCommand(promptsCmd)
	rootCmd.AddCommand(apiCmd)
}
