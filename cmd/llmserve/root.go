package main

import (
	"github.com/spf13/cobra"

	"github.com/alphadeepmind/llmserve/internal/api"
	"github.com/alphadeepmind/llmserve/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	apiKey       string
)

var rootCmd = &cobra.Command{
	Use:   "llmserve",
	Short: "HTTP inference service for a locally hosted reasoning model",
	Long: `llmserve puts a locally hosted reasoning model behind a small HTTP API.

The service provides:
  - One-shot and streamed text generation
  - Document summarization and question answering (PDF, Word, TXT)
  - Department and school matching with structured JSON output
  - Sentence embeddings
  - A queryable history of every model call`,
	Version:      version.GitRelease,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.llmserve/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "llmserve home directory (default: ~/.llmserve)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml, json or table",
	)
	rootCmd.PersistentFlags().StringVar(
		&apiKey, "key", "", "shared API key for api commands (default: $"+api.APIKeyEnv+")",
	)

	// Set output format and key before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
		if apiKey != "" {
			api.SetAPIKey(apiKey)
		}
	}

	rootCmd.AddCommand(versionCmd)
}
