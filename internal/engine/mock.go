package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const MockEngineName = "mock"

// MockEngine is an Engine for testing.
type MockEngine struct {
	// Configurable behavior
	Latency      time.Duration
	ShouldFail   bool
	ResponseText string
	// Deltas are streamed in order; when empty, ResponseText is sent as one delta.
	Deltas    []string
	ModelName string

	// State
	requestCount atomic.Int64
	mu           sync.Mutex
	lastRequest  *Request
	healthErr    error
}

// NewMockEngine creates a mock engine with sensible defaults.
func NewMockEngine() *MockEngine {
	return &MockEngine{
		ResponseText: "mock response",
		ModelName:    "mock-model",
	}
}

// Name returns the client identifier.
func (m *MockEngine) Name() string {
	return MockEngineName
}

// Model returns the mock model name.
func (m *MockEngine) Model() string {
	return m.ModelName
}

// SetHealthError makes HealthCheck return err.
func (m *MockEngine) SetHealthError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthErr = err
}

// HealthCheck returns the configured health error, if any.
func (m *MockEngine) HealthCheck(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthErr
}

// Generate returns ResponseText.
func (m *MockEngine) Generate(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()
	if err := m.begin(ctx, req); err != nil {
		return nil, err
	}
	return &Result{
		Text:             m.ResponseText,
		FinishReason:     "stop",
		PromptTokens:     len(req.Prompt) / 4, // Rough estimate
		CompletionTokens: len(m.ResponseText) / 4,
		Model:            m.ModelName,
		RequestID:        req.RequestID,
		Latency:          time.Since(start),
	}, nil
}

// Stream sends Deltas (or ResponseText) to onDelta.
func (m *MockEngine) Stream(ctx context.Context, req *Request, onDelta func(string) error) (*Result, error) {
	start := time.Now()
	if err := m.begin(ctx, req); err != nil {
		return nil, err
	}

	deltas := m.Deltas
	if len(deltas) == 0 {
		deltas = []string{m.ResponseText}
	}

	result := &Result{Model: m.ModelName, RequestID: req.RequestID, FinishReason: "stop"}
	for _, d := range deltas {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Text += d
		if err := onDelta(d); err != nil {
			return result, err
		}
	}
	result.CompletionTokens = len(result.Text) / 4
	result.Latency = time.Since(start)
	return result, nil
}

func (m *MockEngine) begin(ctx context.Context, req *Request) error {
	m.requestCount.Add(1)
	m.mu.Lock()
	m.lastRequest = req
	m.mu.Unlock()

	if m.ShouldFail {
		return &EngineError{StatusCode: 500, Message: "mock engine configured to fail"}
	}
	if req == nil {
		return fmt.Errorf("request is required")
	}

	// Simulate latency
	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// RequestCount returns the number of requests made.
func (m *MockEngine) RequestCount() int64 {
	return m.requestCount.Load()
}

// LastRequest returns the most recent request, or nil.
func (m *MockEngine) LastRequest() *Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequest
}

// Reset resets the request counter.
func (m *MockEngine) Reset() {
	m.requestCount.Store(0)
	m.mu.Lock()
	m.lastRequest = nil
	m.mu.Unlock()
}

// Verify interface
var _ Engine = (*MockEngine)(nil)
