// Package embedding turns text into dense vectors.
package embedding

import (
	"context"
	"errors"
	"math"
)

// ErrClosed is returned by embedders used after Close.
var ErrClosed = errors.New("embedder is closed")

// Embedder produces one vector per input text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// ModelID identifies the model; it is part of cache keys.
	ModelID() string
	Close() error
}

func normalizeL2(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func cloneVector(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
