// Package home resolves the llmserve home directory layout.
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the llmserve home directory.
	DefaultDirName = ".llmserve"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// CallsDBName is the call history database file name.
	CallsDBName = "llmcalls.db"

	// LockFileName guards against two servers sharing one home directory.
	LockFileName = "server.lock"

	// ModelsDirName holds local model files (embeddings, engine weights).
	ModelsDirName = "models"

	// DefaultEmbeddingModel is the directory name of the bundled sentence encoder.
	DefaultEmbeddingModel = "all-MiniLM-L6-v2"
)

// Dir represents the llmserve home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.llmserve).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// CallsDBPath returns the default call history database path.
func (d *Dir) CallsDBPath() string {
	return filepath.Join(d.path, CallsDBName)
}

// LockPath returns the server lock file path.
func (d *Dir) LockPath() string {
	return filepath.Join(d.path, LockFileName)
}

// ModelsPath returns the directory for local model files.
func (d *Dir) ModelsPath() string {
	return filepath.Join(d.path, ModelsDirName)
}

// EmbeddingModelPath returns the default model.onnx location.
func (d *Dir) EmbeddingModelPath() string {
	return filepath.Join(d.ModelsPath(), DefaultEmbeddingModel, "model.onnx")
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	// Create models directory (this also creates the parent)
	if err := os.MkdirAll(d.ModelsPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
