// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/alphadeepmind/llmserve/internal/config"
	"github.com/alphadeepmind/llmserve/internal/embedding"
	"github.com/alphadeepmind/llmserve/internal/engine"
	"github.com/alphadeepmind/llmserve/internal/home"
	"github.com/alphadeepmind/llmserve/internal/llmcall"
	"github.com/alphadeepmind/llmserve/internal/prompts"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Config       *config.Manager
	Engine       engine.Engine
	Embedder     embedding.Embedder
	Prompts      *prompts.Registry
	Recorder     *llmcall.Recorder
	LLMCallStore *llmcall.Store
	Logger       *slog.Logger
	Home         *home.Dir
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// ConfigFrom returns the current configuration snapshot, or defaults when
// no config manager is attached.
func ConfigFrom(ctx context.Context) *config.Config {
	if s := ServicesFrom(ctx); s != nil && s.Config != nil {
		return s.Config.Get()
	}
	return config.DefaultConfig()
}

// EngineFrom extracts the inference engine from context.
func EngineFrom(ctx context.Context) engine.Engine {
	if s := ServicesFrom(ctx); s != nil {
		return s.Engine
	}
	return nil
}

// EmbedderFrom extracts the embedder from context.
func EmbedderFrom(ctx context.Context) embedding.Embedder {
	if s := ServicesFrom(ctx); s != nil {
		return s.Embedder
	}
	return nil
}

// PromptsFrom extracts the prompt registry from context.
func PromptsFrom(ctx context.Context) *prompts.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Prompts
	}
	return nil
}

// RecorderFrom extracts the call recorder from context.
// A nil recorder is safe to use.
func RecorderFrom(ctx context.Context) *llmcall.Recorder {
	if s := ServicesFrom(ctx); s != nil {
		return s.Recorder
	}
	return nil
}

// LLMCallStoreFrom extracts the call history store from context.
func LLMCallStoreFrom(ctx context.Context) *llmcall.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.LLMCallStore
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}

type requestIDKey struct{}

// WithRequestID attaches the per-request correlation ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request's correlation ID, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
