package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/alphadeepmind/llmserve/internal/config"
	"github.com/alphadeepmind/llmserve/internal/home"
	"github.com/alphadeepmind/llmserve/internal/server"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the llmserve server",
	Long: `Start the llmserve HTTP server.

The server waits for the inference engine to answer its health check before
serving inference routes. With engine.docker.enabled the vLLM container is
started first and stopped again when the server shuts down (Ctrl+C or SIGTERM).

The server provides:
  - /health  - Basic server health check
  - /ready   - Readiness check (includes engine status)
  - /swagger - API documentation

Examples:
  llmserve serve                    # Start with ./config.yaml or ~/.llmserve/config.yaml
  llmserve serve --port 3000        # Start on custom port
  llmserve serve --host 127.0.0.1   # Bind to loopback only`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := getHome()
		if err != nil {
			return err
		}

		cfgMgr, err := config.NewManager(cfgFile, h.Path())
		if err != nil {
			return err
		}

		logger := newLogger(os.Stdout, cfgMgr.Get().Log.Level)
		slog.SetDefault(logger)
		if f := cfgMgr.ConfigFile(); f != "" {
			logger.Info("loaded config", "file", f)
		} else {
			logger.Info("no config file found, using defaults and environment")
		}

		srv, err := server.New(server.Config{
			ConfigManager: cfgMgr,
			Home:          h,
			Host:          serveHost,
			Port:          servePort,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default: server.host)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (default: server.port)")

	rootCmd.AddCommand(serveCmd)
}

// newLogger returns a text logger on a terminal and a JSON logger otherwise.
func newLogger(w io.Writer, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// getHome returns the home directory manager.
func getHome() (*home.Dir, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, fmt.Errorf("failed to create home directory: %w", err)
	}
	return h, nil
}
