package embedding

import (
	"context"
	"errors"
	"hash/fnv"
	"sync/atomic"
)

// MockEmbedder returns deterministic vectors for testing.
type MockEmbedder struct {
	Dim        int
	ShouldFail bool

	requestCount atomic.Int64
	closed       atomic.Bool
}

// NewMockEmbedder creates a mock embedder producing 8-dimensional vectors.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{Dim: 8}
}

// ModelID returns "mock".
func (m *MockEmbedder) ModelID() string {
	return "mock"
}

// Embed derives a unit vector from the FNV hash of text.
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.requestCount.Add(1)
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if m.ShouldFail {
		return nil, errors.New("mock embedder configured to fail")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, m.Dim)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed>>33)%1000) / 1000
	}
	return normalizeL2(vec), nil
}

// RequestCount returns the number of Embed calls.
func (m *MockEmbedder) RequestCount() int64 {
	return m.requestCount.Load()
}

// Close marks the embedder closed.
func (m *MockEmbedder) Close() error {
	m.closed.Store(true)
	return nil
}

var _ Embedder = (*MockEmbedder)(nil)
