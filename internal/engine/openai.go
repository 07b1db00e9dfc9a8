package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAIEngineName = "openai"

	defaultBaseURL = "http://localhost:8000/v1"
	defaultTimeout = 300 * time.Second
)

// OpenAIConfig holds configuration for the OpenAI-compatible engine client.
type OpenAIConfig struct {
	BaseURL string // e.g. http://localhost:8000/v1 for vLLM
	APIKey  string // Optional; vLLM ignores it unless --api-key is set
	Model   string
	Timeout time.Duration

	// GuidedJSON forwards Request.GuidedJSON as vLLM's guided_json extension.
	GuidedJSON bool

	HTTPClient *http.Client // Optional (tests)
}

// OpenAIEngine implements Engine against an OpenAI-compatible completions API.
type OpenAIEngine struct {
	model      string
	baseURL    string
	guidedJSON bool
	timeout    time.Duration
	client     openai.Client
}

// NewOpenAIEngine creates a new engine client.
func NewOpenAIEngine(cfg OpenAIConfig) *OpenAIEngine {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.APIKey == "" {
		cfg.APIKey = "EMPTY"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	// Blocking calls are bounded per call; streams only until response headers.
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = cfg.Timeout
		httpClient = &http.Client{Transport: transport}
	}

	// Inference calls are never retried.
	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
		option.WithBaseURL(cfg.BaseURL),
	)

	return &OpenAIEngine{
		model:      cfg.Model,
		baseURL:    cfg.BaseURL,
		guidedJSON: cfg.GuidedJSON,
		timeout:    cfg.Timeout,
		client:     client,
	}
}

// Name returns the client identifier.
func (e *OpenAIEngine) Name() string {
	return OpenAIEngineName
}

// Model returns the configured model.
func (e *OpenAIEngine) Model() string {
	return e.model
}

// BaseURL returns the API base URL.
func (e *OpenAIEngine) BaseURL() string {
	return e.baseURL
}

// HealthCheck verifies the engine is reachable by listing its models.
func (e *OpenAIEngine) HealthCheck(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	page, err := e.client.Models.List(callCtx)
	if err != nil {
		return fmt.Errorf("engine models list failed: %w", e.callError(ctx, err))
	}
	if page == nil {
		return fmt.Errorf("engine models list returned nil response")
	}
	return nil
}

// Generate runs a blocking completion.
func (e *OpenAIEngine) Generate(ctx context.Context, req *Request) (*Result, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	start := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.Completions.New(callCtx, e.params(req), e.extras(req)...)
	if err != nil {
		return nil, e.callError(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return nil, &EngineError{Message: "completion returned no choices"}
	}

	return &Result{
		Text:             resp.Choices[0].Text,
		FinishReason:     string(resp.Choices[0].FinishReason),
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		Model:            resp.Model,
		RequestID:        req.RequestID,
		Latency:          time.Since(start),
	}, nil
}

// Stream runs a streaming completion, forwarding each non-empty text delta.
func (e *OpenAIEngine) Stream(ctx context.Context, req *Request, onDelta func(string) error) (*Result, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	start := time.Now()

	stream := e.client.Completions.NewStreaming(ctx, e.params(req), e.extras(req)...)
	defer stream.Close()

	result := &Result{Model: e.model, RequestID: req.RequestID}
	var text strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if chunk.Model != "" {
			result.Model = chunk.Model
		}
		if chunk.Usage.CompletionTokens > 0 {
			result.PromptTokens = int(chunk.Usage.PromptTokens)
			result.CompletionTokens = int(chunk.Usage.CompletionTokens)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			result.FinishReason = string(choice.FinishReason)
		}
		if choice.Text == "" {
			continue
		}
		text.WriteString(choice.Text)
		if err := onDelta(choice.Text); err != nil {
			result.Text = text.String()
			result.Latency = time.Since(start)
			return result, err
		}
	}

	result.Text = text.String()
	result.Latency = time.Since(start)
	if err := stream.Err(); err != nil {
		return result, mapOpenAIError(err)
	}
	return result, nil
}

func (e *OpenAIEngine) params(req *Request) openai.CompletionNewParams {
	params := openai.CompletionNewParams{
		Model: openai.CompletionNewParamsModel(e.model),
		Prompt: openai.CompletionNewParamsPromptUnion{
			OfString: openai.String(req.Prompt),
		},
		Temperature: openai.Float(req.Sampling.Temperature),
	}
	if req.Sampling.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.Sampling.MaxTokens))
	}
	return params
}

// extras carries vLLM sampling extensions the OpenAI schema does not define.
func (e *OpenAIEngine) extras(req *Request) []option.RequestOption {
	var opts []option.RequestOption
	if req.Sampling.TopK > 0 {
		opts = append(opts, option.WithJSONSet("top_k", req.Sampling.TopK))
	}
	if req.Sampling.RepetitionPenalty > 0 {
		opts = append(opts, option.WithJSONSet("repetition_penalty", req.Sampling.RepetitionPenalty))
	}
	if e.guidedJSON && len(req.GuidedJSON) > 0 {
		opts = append(opts, option.WithJSONSet("guided_json", req.GuidedJSON))
	}
	if req.RequestID != "" {
		opts = append(opts, option.WithHeader("X-Request-Id", req.RequestID))
	}
	return opts
}

// callError maps err from a call bounded by e.timeout. Hitting that bound is
// an engine failure; cancellation of the caller's ctx is passed through.
func (e *OpenAIEngine) callError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return &EngineError{
			Message: fmt.Sprintf("engine call timed out after %s", e.timeout),
			Err:     fmt.Errorf("%w: %w", ErrEngineUnavailable, err),
		}
	}
	return mapOpenAIError(err)
}

func mapOpenAIError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return &EngineError{StatusCode: apiErr.StatusCode, Message: msg, Err: err}
	}
	return &EngineError{
		Message: err.Error(),
		Err:     fmt.Errorf("%w: %w", ErrEngineUnavailable, err),
	}
}

var _ Engine = (*OpenAIEngine)(nil)
