package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds llmserve configuration.
// Stored at: ./config.yaml or {home}/config.yaml
type Config struct {
	Server    ServerCfg    `mapstructure:"server" yaml:"server"`
	Auth      AuthCfg      `mapstructure:"auth" yaml:"auth"`
	Engine    EngineCfg    `mapstructure:"engine" yaml:"engine"`
	Embedding EmbeddingCfg `mapstructure:"embedding" yaml:"embedding"`
	Limits    LimitsCfg    `mapstructure:"limits" yaml:"limits"`
	Store     StoreCfg     `mapstructure:"store" yaml:"store"`
	Log       LogCfg       `mapstructure:"log" yaml:"log"`
}

// ServerCfg configures the HTTP listener.
type ServerCfg struct {
	Host        string   `mapstructure:"host" yaml:"host"`
	Port        string   `mapstructure:"port" yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"` // Exact-match origin allowlist
}

// AuthCfg holds the shared request key.
type AuthCfg struct {
	APIKey string `mapstructure:"api_key" yaml:"api_key"` // Supports ${ENV_VAR} syntax
}

// EngineCfg configures the inference engine client.
type EngineCfg struct {
	BaseURL             string    `mapstructure:"base_url" yaml:"base_url"`
	APIKey              string    `mapstructure:"api_key" yaml:"api_key"`
	Model               string    `mapstructure:"model" yaml:"model"`
	TimeoutSeconds      int       `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	ReadyTimeoutSeconds int       `mapstructure:"ready_timeout_seconds" yaml:"ready_timeout_seconds"`
	GuidedJSON          bool      `mapstructure:"guided_json" yaml:"guided_json"`
	ReasoningDelimiter  string    `mapstructure:"reasoning_delimiter" yaml:"reasoning_delimiter"`
	Docker              DockerCfg `mapstructure:"docker" yaml:"docker"`
}

// DockerCfg configures the optional managed vLLM container.
type DockerCfg struct {
	Enabled       bool     `mapstructure:"enabled" yaml:"enabled"`
	Image         string   `mapstructure:"image" yaml:"image"`
	ContainerName string   `mapstructure:"container_name" yaml:"container_name"`
	HostPort      string   `mapstructure:"host_port" yaml:"host_port"`
	ModelPath     string   `mapstructure:"model_path" yaml:"model_path"` // Host directory mounted read-only
	GPU           bool     `mapstructure:"gpu" yaml:"gpu"`
	ExtraArgs     []string `mapstructure:"extra_args" yaml:"extra_args"`
}

// EmbeddingCfg configures the sentence embedder.
type EmbeddingCfg struct {
	Type      string  `mapstructure:"type" yaml:"type"` // "onnx" or "openai"
	Model     string  `mapstructure:"model" yaml:"model"`
	BaseURL   string  `mapstructure:"base_url" yaml:"base_url"`
	APIKey    string  `mapstructure:"api_key" yaml:"api_key"`
	CacheSize int     `mapstructure:"cache_size" yaml:"cache_size"`
	ONNX      ONNXCfg `mapstructure:"onnx" yaml:"onnx"`
}

// ONNXCfg locates the local embedding model files.
type ONNXCfg struct {
	LibraryPath   string `mapstructure:"library_path" yaml:"library_path"`
	ModelPath     string `mapstructure:"model_path" yaml:"model_path"`
	TokenizerPath string `mapstructure:"tokenizer_path" yaml:"tokenizer_path"`
	MaxSeqLen     int    `mapstructure:"max_seq_len" yaml:"max_seq_len"`
}

// LimitsCfg bounds request sizes and document chunking.
type LimitsCfg struct {
	MaxPromptChars int   `mapstructure:"max_prompt_chars" yaml:"max_prompt_chars"`
	ChunkChars     int   `mapstructure:"chunk_chars" yaml:"chunk_chars"`
	MaxChunks      int   `mapstructure:"max_chunks" yaml:"max_chunks"`
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
}

// StoreCfg configures call history persistence.
type StoreCfg struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"` // Empty uses {home}/llmcalls.db
}

// LogCfg configures logging.
type LogCfg struct {
	Level string `mapstructure:"level" yaml:"level"` // debug, info, warn, error
}

// DefaultCORSOrigins are the browser origins allowed to call the service.
var DefaultCORSOrigins = []string{
	"http://45.78.215.196:8080",
	"https://www.alphadeepmind.com",
	"https://www.alphadeepmind.com/AI_Insurance",
	"https://www.alphadeepmind.com/AI_Insurance/",
	"https://alphadeepmind.com",
	"https://alphadeepmind.com/AI_Insurance",
	"https://alphadeepmind.com/AI_Insurance/",
	"https://api.alphadeepmind.com",
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerCfg{
			Host:        "0.0.0.0",
			Port:        "8080",
			CORSOrigins: append([]string(nil), DefaultCORSOrigins...),
		},
		Auth: AuthCfg{
			APIKey: "${API_KEY}",
		},
		Engine: EngineCfg{
			BaseURL:             "http://localhost:8000/v1",
			APIKey:              "${ENGINE_API_KEY}",
			Model:               "deepseek-ai/DeepSeek-R1-Distill-Qwen-32B",
			TimeoutSeconds:      300,
			ReadyTimeoutSeconds: 600,
			GuidedJSON:          false,
			ReasoningDelimiter:  "</think>",
			Docker: DockerCfg{
				Enabled:       false,
				Image:         "vllm/vllm-openai:latest",
				ContainerName: "llmserve-vllm",
				HostPort:      "8000",
				GPU:           true,
				ExtraArgs:     []string{"--max-model-len", "8192", "--dtype", "float16"},
			},
		},
		Embedding: EmbeddingCfg{
			Type:      "onnx",
			Model:     "sentence-transformers/all-MiniLM-L6-v2",
			CacheSize: 4096,
			ONNX: ONNXCfg{
				MaxSeqLen: 256,
			},
		},
		Limits: LimitsCfg{
			MaxPromptChars: 4000,
			ChunkChars:     8000,
			MaxChunks:      2,
			MaxUploadBytes: 32 << 20,
		},
		Store: StoreCfg{
			Enabled: true,
		},
		Log: LogCfg{
			Level: "info",
		},
	}
}

// ResolvedAPIKey returns the shared request key with ${ENV_VAR} references expanded.
func (c *Config) ResolvedAPIKey() string {
	return ResolveEnvVars(c.Auth.APIKey)
}

// ResolvedEngineAPIKey returns the engine credential with ${ENV_VAR} references expanded.
func (c *Config) ResolvedEngineAPIKey() string {
	return ResolveEnvVars(c.Engine.APIKey)
}

// EngineTimeout returns the per-call engine timeout.
func (c *Config) EngineTimeout() time.Duration {
	return time.Duration(c.Engine.TimeoutSeconds) * time.Second
}

// ReadyTimeout returns how long startup waits for the engine.
func (c *Config) ReadyTimeout() time.Duration {
	return time.Duration(c.Engine.ReadyTimeoutSeconds) * time.Second
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.ResolvedAPIKey() == "" {
		errs = append(errs, errors.New("auth.api_key is empty (set API_KEY or auth.api_key)"))
	}
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Engine.Model == "" {
		errs = append(errs, errors.New("engine.model is required"))
	}
	if c.Limits.MaxPromptChars <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_prompt_chars must be positive, got %d", c.Limits.MaxPromptChars))
	}
	if c.Limits.ChunkChars <= 0 {
		errs = append(errs, fmt.Errorf("limits.chunk_chars must be positive, got %d", c.Limits.ChunkChars))
	}
	if c.Limits.MaxChunks <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_chunks must be positive, got %d", c.Limits.MaxChunks))
	}
	switch strings.ToLower(c.Embedding.Type) {
	case "onnx", "openai", "":
	default:
		errs = append(errs, fmt.Errorf("embedding.type must be onnx or openai, got %q", c.Embedding.Type))
	}
	return errors.Join(errs...)
}
