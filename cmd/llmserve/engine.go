package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alphadeepmind/llmserve/internal/config"
	"github.com/alphadeepmind/llmserve/internal/engine"
	"github.com/alphadeepmind/llmserve/internal/server"
)

var engineCmd = &cobra.Command{
	Use:   "engine",
	Short: "Manage the vLLM engine container",
	Long: `Manage the vLLM engine container lifecycle.

The container is described by the engine.docker section of the config file.
Model weights are mounted read-only from engine.docker.model_path.

Examples:
  llmserve engine start   # Start the engine container
  llmserve engine stop    # Stop the container
  llmserve engine status  # Check container and engine health
  llmserve engine logs    # View container logs`,
}

var engineStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the engine container",
	Long: `Start the engine container.

If the container doesn't exist, it will be created and started.
If it exists but is stopped, it will be started.
If it's already running, this is a no-op.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, _, err := getDockerManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Starting engine...")
		if err := mgr.Start(ctx); err != nil {
			return fmt.Errorf("failed to start engine: %w", err)
		}

		fmt.Printf("Engine is running at %s\n", mgr.URL())
		return nil
	},
}

var engineStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the engine container",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, _, err := getDockerManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Stopping engine...")
		if err := mgr.Stop(ctx); err != nil {
			return fmt.Errorf("failed to stop engine: %w", err)
		}

		fmt.Println("Engine stopped")
		return nil
	},
}

var engineStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show engine container status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, cfg, err := getDockerManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		status, err := mgr.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}

		switch status {
		case engine.StatusRunning:
			fmt.Printf("Status: %s\n", status)
			fmt.Printf("URL: %s\n", mgr.URL())
			fmt.Printf("Model: %s\n", cfg.Engine.Model)

			client := engine.NewOpenAIEngine(engine.OpenAIConfig{
				BaseURL: mgr.URL(),
				APIKey:  cfg.ResolvedEngineAPIKey(),
				Model:   cfg.Engine.Model,
				Timeout: 10 * time.Second,
			})
			if err := client.HealthCheck(ctx); err != nil {
				fmt.Printf("Health: unhealthy (%v)\n", err)
			} else {
				fmt.Println("Health: healthy")
			}
		case engine.StatusStopped:
			fmt.Printf("Status: %s (use 'llmserve engine start' to start)\n", status)
		case engine.StatusNotFound:
			fmt.Printf("Status: %s (use 'llmserve engine start' to create)\n", status)
		default:
			fmt.Printf("Status: %s\n", status)
		}

		return nil
	},
}

var logsTail string

var engineLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show engine container logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, _, err := getDockerManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		logs, err := mgr.Logs(ctx, logsTail)
		if err != nil {
			return fmt.Errorf("failed to get logs: %w", err)
		}

		fmt.Print(logs)
		return nil
	},
}

var engineRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove the engine container",
	Long: `Remove the engine container.

This stops and removes the container. Model weights on the host are
NOT deleted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, _, err := getDockerManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Removing engine container...")
		if err := mgr.Remove(ctx); err != nil {
			return fmt.Errorf("failed to remove container: %w", err)
		}

		fmt.Println("Engine container removed")
		return nil
	},
}

var engineWaitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for the engine to be ready",
	Long: `Wait for the engine to answer its health check.

Loading large models can take several minutes. This is useful in scripts
to ensure the engine is serving before sending traffic.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, _, err := getDockerManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		timeout, _ := cmd.Flags().GetDuration("timeout")
		fmt.Printf("Waiting for engine (timeout: %s)...\n", timeout)

		if err := mgr.WaitReady(ctx, timeout); err != nil {
			return fmt.Errorf("engine not ready: %w", err)
		}

		fmt.Println("Engine is ready")
		return nil
	},
}

func init() {
	engineCmd.AddCommand(engineStartCmd)
	engineCmd.AddCommand(engineStopCmd)
	engineCmd.AddCommand(engineStatusCmd)
	engineCmd.AddCommand(engineLogsCmd)
	engineCmd.AddCommand(engineRemoveCmd)
	engineCmd.AddCommand(engineWaitCmd)

	engineLogsCmd.Flags().StringVar(&logsTail, "tail", "100", "Number of lines to show from the end")
	engineWaitCmd.Flags().Duration("timeout", 10*time.Minute, "Timeout waiting for the engine")

	rootCmd.AddCommand(engineCmd)
}

// getDockerManager loads the config and creates the engine container manager.
func getDockerManager() (*engine.DockerManager, *config.Config, error) {
	h, err := getHome()
	if err != nil {
		return nil, nil, err
	}
	cfgMgr, err := config.NewManager(cfgFile, h.Path())
	if err != nil {
		return nil, nil, err
	}
	cfg := cfgMgr.Get()

	mgr, err := server.NewDockerManager(cfg, h)
	if err != nil {
		return nil, nil, err
	}
	return mgr, cfg, nil
}
