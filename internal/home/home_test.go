package home

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("with explicit path", func(t *testing.T) {
		dir, err := New("/tmp/test-llmserve")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dir.Path() != "/tmp/test-llmserve" {
			t.Errorf("expected path /tmp/test-llmserve, got %s", dir.Path())
		}
	})

	t.Run("with empty path uses default", func(t *testing.T) {
		dir, err := New("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, DefaultDirName)
		if dir.Path() != expected {
			t.Errorf("expected path %s, got %s", expected, dir.Path())
		}
	})
}

func TestDir_Paths(t *testing.T) {
	dir, _ := New("/tmp/test-llmserve")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"ConfigPath", dir.ConfigPath(), "/tmp/test-llmserve/config.yaml"},
		{"CallsDBPath", dir.CallsDBPath(), "/tmp/test-llmserve/llmcalls.db"},
		{"LockPath", dir.LockPath(), "/tmp/test-llmserve/server.lock"},
		{"ModelsPath", dir.ModelsPath(), "/tmp/test-llmserve/models"},
		{"EmbeddingModelPath", dir.EmbeddingModelPath(), "/tmp/test-llmserve/models/all-MiniLM-L6-v2/model.onnx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, tt.got)
			}
		})
	}
}

func TestDir_EnsureExists(t *testing.T) {
	root := filepath.Join(t.TempDir(), "llmserve-home")
	dir, _ := New(root)

	if dir.Exists() {
		t.Fatal("expected home to not exist yet")
	}
	if err := dir.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists failed: %v", err)
	}
	if !dir.Exists() {
		t.Error("expected home to exist")
	}
	if _, err := os.Stat(dir.ModelsPath()); err != nil {
		t.Errorf("expected models dir: %v", err)
	}

	if dir.ConfigExists() {
		t.Error("expected no config file yet")
	}
	if err := os.WriteFile(dir.ConfigPath(), []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !dir.ConfigExists() {
		t.Error("expected config file to exist")
	}
}
