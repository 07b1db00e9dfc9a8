// Package llmcall records every inference engine invocation for traceability.
// A call captures the prompt, the raw model output, token usage and, for the
// structured endpoints, whether the output had to be replaced by a fallback.
package llmcall

import (
	"time"

	"github.com/google/uuid"

	"github.com/alphadeepmind/llmserve/internal/engine"
)

// Call represents a recorded engine invocation.
type Call struct {
	ID string `json:"id"`

	// Timing
	Timestamp time.Time `json:"timestamp"`
	LatencyMs int64     `json:"latency_ms"`

	// Request context
	Endpoint  string `json:"endpoint"`
	RequestID string `json:"request_id,omitempty"`

	// Prompt traceability
	PromptKey  string `json:"prompt_key,omitempty"`
	PromptHash string `json:"prompt_hash,omitempty"`
	Prompt     string `json:"prompt,omitempty"`

	// Model info
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature,omitempty"`

	// Token usage
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`

	Response string `json:"response"`

	// Status
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
	ParseError   string `json:"parse_error,omitempty"`
	UsedFallback bool   `json:"used_fallback,omitempty"`
}

// RecordOptions provides context for recording a call.
type RecordOptions struct {
	Endpoint  string
	RequestID string

	// Prompt identification
	PromptKey  string
	PromptHash string
	Prompt     string

	// Fallback model name when the engine result carries none.
	Model string

	// Pointer to distinguish "not set" from "set to 0".
	Temperature *float64
}

// FromResult creates a Call from an engine result and the error returned
// alongside it. Either may be nil; latency falls back to the elapsed time
// since start when the result has none.
func FromResult(res *engine.Result, err error, start time.Time, opts RecordOptions) *Call {
	call := &Call{
		ID:          uuid.New().String(),
		Timestamp:   start.UTC(),
		LatencyMs:   time.Since(start).Milliseconds(),
		Endpoint:    opts.Endpoint,
		RequestID:   opts.RequestID,
		PromptKey:   opts.PromptKey,
		PromptHash:  opts.PromptHash,
		Prompt:      opts.Prompt,
		Model:       opts.Model,
		Temperature: opts.Temperature,
		Success:     err == nil,
	}
	if start.IsZero() {
		call.Timestamp = time.Now().UTC()
		call.LatencyMs = 0
	}

	if res != nil {
		if res.Model != "" {
			call.Model = res.Model
		}
		if res.Latency > 0 {
			call.LatencyMs = res.Latency.Milliseconds()
		}
		call.PromptTokens = res.PromptTokens
		call.CompletionTokens = res.CompletionTokens
		call.Response = res.Text
	}
	if err != nil {
		call.Error = err.Error()
	}
	return call
}

// MarkParseFailure notes that the structured output could not be used.
func (c *Call) MarkParseFailure(err error, usedFallback bool) {
	if c == nil {
		return
	}
	if err != nil {
		c.ParseError = err.Error()
	}
	c.UsedFallback = usedFallback
}
