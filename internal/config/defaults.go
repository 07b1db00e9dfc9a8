package config

import (
	"errors"
	"fmt"
	"sort"
	"unicode"

	"gopkg.in/yaml.v2"
)

// ErrNoDefault is returned when no default value exists for a config key.
var ErrNoDefault = errors.New("no default exists")

// ErrInvalidKey is returned when a config key contains invalid characters.
var ErrInvalidKey = errors.New("invalid config key")

// Entry represents a single configuration entry.
type Entry struct {
	Key         string `json:"key" yaml:"key"`
	Value       any    `json:"value" yaml:"value"`
	Description string `json:"description" yaml:"description"`
}

var descriptions = map[string]string{
	"server.host":                   "Interface the HTTP server binds to",
	"server.port":                   "HTTP listen port",
	"server.cors_origins":           "Browser origins allowed by CORS (exact match, credentials allowed)",
	"auth.api_key":                  "Shared request key checked on every inference endpoint (uses environment variable)",
	"engine.base_url":               "OpenAI-compatible completions endpoint of the inference engine",
	"engine.api_key":                "Engine credential, if the engine was started with --api-key",
	"engine.model":                  "Model name served by the engine",
	"engine.timeout_seconds":        "HTTP timeout in seconds for a single engine call",
	"engine.ready_timeout_seconds":  "How long startup waits for the engine to become healthy",
	"engine.guided_json":            "Send response schemas to the engine as guided_json",
	"engine.reasoning_delimiter":    "Marker that ends the model's reasoning section",
	"engine.docker.enabled":         "Start and stop a vLLM container with the server",
	"engine.docker.image":           "Docker image for the managed engine",
	"engine.docker.container_name":  "Container name for the managed engine",
	"engine.docker.host_port":       "Host port the managed engine binds on 127.0.0.1",
	"engine.docker.model_path":      "Host directory mounted read-only at /models (empty uses {home}/models)",
	"engine.docker.gpu":             "Request all GPUs for the managed engine",
	"engine.docker.extra_args":      "Additional vLLM server arguments",
	"embedding.type":                "Embedding backend: onnx (local) or openai (remote endpoint)",
	"embedding.model":               "Embedding model identifier",
	"embedding.base_url":            "Embeddings endpoint for the openai backend",
	"embedding.api_key":             "Credential for the openai embedding backend",
	"embedding.cache_size":          "Number of embeddings kept in memory (0 disables caching)",
	"embedding.onnx.library_path":   "onnxruntime shared library (empty uses the platform default)",
	"embedding.onnx.model_path":     "model.onnx path (empty uses {home}/models/all-MiniLM-L6-v2/model.onnx)",
	"embedding.onnx.tokenizer_path": "tokenizer.json path (empty uses the file next to the model)",
	"embedding.onnx.max_seq_len":    "Token limit per embedded text",
	"limits.max_prompt_chars":       "Maximum prompt length in characters for generate and stream",
	"limits.chunk_chars":            "Characters per document chunk in file tasks",
	"limits.max_chunks":             "Document chunks included in a file-task prompt",
	"limits.max_upload_bytes":       "Maximum accepted upload size in bytes",
	"store.enabled":                 "Record every engine call in the call history database",
	"store.path":                    "Call history database path (empty uses {home}/llmcalls.db)",
	"log.level":                     "Log level: debug, info, warn or error",
}

// DefaultEntries returns every leaf key of DefaultConfig with its value and
// description, sorted by key.
func DefaultEntries() []Entry {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		panic(fmt.Sprintf("marshal default config: %v", err))
	}
	var tree map[interface{}]interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		panic(fmt.Sprintf("unmarshal default config: %v", err))
	}

	var entries []Entry
	flatten("", tree, &entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}

func flatten(prefix string, node map[interface{}]interface{}, out *[]Entry) {
	for k, v := range node {
		key := fmt.Sprint(k)
		if prefix != "" {
			key = prefix + "." + key
		}
		if child, ok := v.(map[interface{}]interface{}); ok {
			flatten(key, child, out)
			continue
		}
		*out = append(*out, Entry{Key: key, Value: v, Description: descriptions[key]})
	}
}

// GetDefault returns the default entry for a config key.
// Returns nil if no default exists for the key.
func GetDefault(key string) *Entry {
	for _, entry := range DefaultEntries() {
		if entry.Key == key {
			return &entry
		}
	}
	return nil
}

// ValidateKey checks if a config key contains only allowed characters.
// Valid keys contain: letters, digits, dots, underscores, and hyphens.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	for i, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_' && r != '-' {
			return fmt.Errorf("%w: invalid character %q at position %d", ErrInvalidKey, r, i)
		}
	}
	if key[0] == '.' || key[len(key)-1] == '.' {
		return fmt.Errorf("%w: key cannot start or end with a dot", ErrInvalidKey)
	}
	return nil
}
