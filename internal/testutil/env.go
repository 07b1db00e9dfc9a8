package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestAPIKey is the shared key written into test configs.
const TestAPIKey = "test-key"

// ServerConfig returns configuration values for creating a test server.
// This avoids importing the server package directly.
type ServerConfig struct {
	Host       string
	Port       string
	HomeDir    string
	ConfigFile string
	APIKey     string
	Logger     *slog.Logger
}

// NewServerConfig creates a home directory with a config file and a free port
// for a test server. extra is appended to the generated YAML.
func NewServerConfig(t *testing.T, extra string) ServerConfig {
	t.Helper()

	homeDir := t.TempDir()
	port, err := FindFreePort()
	if err != nil {
		t.Fatalf("failed to find free port for HTTP: %v", err)
	}

	configFile := filepath.Join(homeDir, "config.yaml")
	yaml := fmt.Sprintf(`server:
  host: 127.0.0.1
  port: "%s"
auth:
  api_key: %s
engine:
  ready_timeout_seconds: 5
embedding:
  type: openai
  model: test-embedding
store:
  enabled: true
%s`, port, TestAPIKey, extra)
	if err := os.WriteFile(configFile, []byte(yaml), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	return ServerConfig{
		Host:       "127.0.0.1",
		Port:       port,
		HomeDir:    homeDir,
		ConfigFile: configFile,
		APIKey:     TestAPIKey,
		Logger:     Logger(t),
	}
}

// URL returns the server URL for the given config.
func (c ServerConfig) URL() string {
	return fmt.Sprintf("http://%s:%s", c.Host, c.Port)
}

// Logger returns a logger that writes to the test log when -v is set.
func Logger(t *testing.T) *slog.Logger {
	if !testing.Verbose() {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// WaitForServer polls /ready until the server reports a ready engine.
func WaitForServer(url string, timeout time.Duration) error {
	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get(url + "/ready")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("server not ready after %v", timeout)
}

// WaitForShutdown waits for a channel to receive a value or timeout.
func WaitForShutdown(done <-chan error, timeout time.Duration) error {
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for shutdown")
	}
}

// HTTPClient returns an HTTP client for making requests.
func HTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// FindFreePort finds an available TCP port and returns it as a string.
func FindFreePort() (string, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer listener.Close()
	return fmt.Sprintf("%d", listener.Addr().(*net.TCPAddr).Port), nil
}
