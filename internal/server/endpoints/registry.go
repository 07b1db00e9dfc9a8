package endpoints

import (
	"github.com/alphadeepmind/llmserve/internal/api"
	"github.com/alphadeepmind/llmserve/internal/engine"
	"github.com/alphadeepmind/llmserve/internal/prompts"
	"github.com/alphadeepmind/llmserve/internal/prompts/filetask"
	"github.com/alphadeepmind/llmserve/internal/prompts/match"
	"github.com/alphadeepmind/llmserve/internal/prompts/similarity"
	"github.com/alphadeepmind/llmserve/internal/prompts/stream"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	// Docker is the managed engine container, nil when the engine runs elsewhere.
	Docker *engine.DockerManager
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{Docker: cfg.Docker},

		// Inference endpoints
		&GenerateEndpoint{},
		&StreamEndpoint{},
		&FileTaskEndpoint{},
		&SmartMatchEndpoint{},
		&SimilarityEndpoint{},
		&EmbeddingEndpoint{},

		// LLM call history endpoints
		&ListLLMCallsEndpoint{},
		&LLMCallCountsEndpoint{},
		&GetLLMCallEndpoint{},
		&PruneLLMCallsEndpoint{},

		// Prompt endpoints
		&ListPromptsEndpoint{},
		&GetPromptEndpoint{},

		// Swagger/OpenAPI endpoints
		&SwaggerEndpoint{},
		&SwaggerUIEndpoint{},
	}
}

// LLMCallCommands returns endpoints for LLM call history operations.
// This groups llmcall-related commands under "llmcalls" subcommand.
func LLMCallCommands() []api.Endpoint {
	return []api.Endpoint{
		&ListLLMCallsEndpoint{},
		&GetLLMCallEndpoint{},
		&LLMCallCountsEndpoint{},
		&PruneLLMCallsEndpoint{},
	}
}

// PromptCommands returns endpoints grouped under the "prompts" subcommand.
func PromptCommands() []api.Endpoint {
	return []api.Endpoint{
		&ListPromptsEndpoint{},
		&GetPromptEndpoint{},
	}
}

// TopLevelCommands returns endpoints whose commands sit directly under "api".
func TopLevelCommands() []api.Endpoint {
	return []api.Endpoint{
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&GenerateEndpoint{},
		&StreamEndpoint{},
		&FileTaskEndpoint{},
		&SmartMatchEndpoint{},
		&SimilarityEndpoint{},
		&EmbeddingEndpoint{},
		&SwaggerEndpoint{},
		&SwaggerUIEndpoint{},
	}
}

// RegisterPrompts registers every prompt template the endpoints render.
func RegisterPrompts(r *prompts.Registry) {
	prompts.RegisterPrompts(r)
	stream.RegisterPrompts(r)
	filetask.RegisterPrompts(r)
	match.RegisterPrompts(r)
	similarity.RegisterPrompts(r)
}
