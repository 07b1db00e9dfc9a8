// Package engine is the boundary to the external inference engine.
//
// The engine is reached over its OpenAI-compatible HTTP API. A single Engine
// is built at startup and shared by every request handler.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrEngineUnavailable is returned when the engine cannot be reached at all.
var ErrEngineUnavailable = errors.New("inference engine unavailable")

// Engine generates text from a raw prompt.
type Engine interface {
	// Generate runs one blocking completion.
	Generate(ctx context.Context, req *Request) (*Result, error)

	// Stream runs one completion and calls onDelta for each text delta in
	// order. Returning an error from onDelta stops the stream.
	Stream(ctx context.Context, req *Request, onDelta func(delta string) error) (*Result, error)

	// Name returns the client identifier (e.g., "openai").
	Name() string

	// Model returns the model served by the engine.
	Model() string

	// HealthCheck verifies the engine is reachable.
	HealthCheck(ctx context.Context) error
}

// SamplingParams are passed through to the engine unchanged.
type SamplingParams struct {
	Temperature       float64 `json:"temperature"`
	MaxTokens         int     `json:"max_tokens,omitempty"`
	TopK              int     `json:"top_k,omitempty"`
	RepetitionPenalty float64 `json:"repetition_penalty,omitempty"`
}

// Request is a single completion request.
type Request struct {
	Prompt   string         `json:"prompt"`
	Sampling SamplingParams `json:"sampling"`

	// GuidedJSON constrains decoding to a JSON schema when the engine supports it.
	GuidedJSON json.RawMessage `json:"guided_json,omitempty"`

	// Request tracking
	RequestID string `json:"-"`
}

// Result is the complete output of one engine call.
type Result struct {
	Text             string        `json:"text"`
	FinishReason     string        `json:"finish_reason,omitempty"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	Model            string        `json:"model"`
	RequestID        string        `json:"request_id"`
	Latency          time.Duration `json:"latency"`
}

// EngineError is a failed engine call with the upstream HTTP status, if any.
type EngineError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *EngineError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("engine error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("engine error: %s", e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}
