package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func vectorNorm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

func TestNormalizeL2(t *testing.T) {
	got := normalizeL2([]float32{3, 4})
	if math.Abs(float64(got[0])-0.6) > 1e-6 || math.Abs(float64(got[1])-0.8) > 1e-6 {
		t.Errorf("normalizeL2([3 4]) = %v, want [0.6 0.8]", got)
	}

	zero := normalizeL2([]float32{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("normalizeL2(zero) = %v", zero)
	}
}

func TestMeanPool(t *testing.T) {
	// seq=3, dim=2; the last position is padding.
	states := []float32{
		1, 2,
		3, 4,
		100, 100,
	}
	mask := []int64{1, 1, 0}

	got := meanPool(states, mask, 2)
	if got[0] != 2 || got[1] != 3 {
		t.Errorf("meanPool() = %v, want [2 3]", got)
	}

	empty := meanPool(states, []int64{0, 0, 0}, 2)
	if empty[0] != 0 || empty[1] != 0 {
		t.Errorf("meanPool(no mask) = %v, want zeros", empty)
	}
}

func TestFillInputs(t *testing.T) {
	t.Run("pads", func(t *testing.T) {
		dst := []int64{9, 9, 9, 9}
		fillInputs(dst, []int{101, 7, 102})
		want := []int64{101, 7, 102, 0}
		for i := range want {
			if dst[i] != want[i] {
				t.Fatalf("dst = %v, want %v", dst, want)
			}
		}
	})

	t.Run("truncates", func(t *testing.T) {
		dst := make([]int64, 2)
		fillInputs(dst, []int{1, 2, 3})
		if dst[0] != 1 || dst[1] != 2 {
			t.Errorf("dst = %v, want [1 2]", dst)
		}
	})
}

func TestONNXConfig_Defaults(t *testing.T) {
	cfg := ONNXConfig{ModelPath: "/models/all-MiniLM-L6-v2/model.onnx"}.withDefaults()
	if cfg.MaxSeqLen != defaultMaxSeqLen {
		t.Errorf("MaxSeqLen = %d", cfg.MaxSeqLen)
	}
	if cfg.EmbeddingDim != 384 {
		t.Errorf("EmbeddingDim = %d", cfg.EmbeddingDim)
	}
	if cfg.ModelID != "all-MiniLM-L6-v2" {
		t.Errorf("ModelID = %q", cfg.ModelID)
	}
}

func TestNewONNXEmbedder_MissingModel(t *testing.T) {
	_, err := NewONNXEmbedder(ONNXConfig{ModelPath: t.TempDir() + "/missing.onnx"})
	if err == nil {
		t.Fatal("NewONNXEmbedder() error = nil, want error")
	}
}

func TestMockEmbedder(t *testing.T) {
	m := NewMockEmbedder()
	ctx := context.Background()

	a, err := m.Embed(ctx, "computer science")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	b, _ := m.Embed(ctx, "computer science")
	c, _ := m.Embed(ctx, "history")

	if len(a) != 8 {
		t.Fatalf("len = %d, want 8", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("embedding is not deterministic")
		}
	}
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
		}
	}
	if same {
		t.Error("different texts produced identical vectors")
	}
	if n := vectorNorm(a); math.Abs(n-1) > 1e-5 {
		t.Errorf("norm = %f, want 1", n)
	}

	_ = m.Close()
	if _, err := m.Embed(ctx, "x"); !errors.Is(err, ErrClosed) {
		t.Errorf("Embed() after Close error = %v, want ErrClosed", err)
	}
}

func TestCachedEmbedder(t *testing.T) {
	inner := NewMockEmbedder()
	cached := NewCachedEmbedder(inner, 2)
	ctx := context.Background()

	first, err := cached.Embed(ctx, "a")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	first[0] = 42 // callers may mutate their copy

	second, _ := cached.Embed(ctx, "a")
	if second[0] == 42 {
		t.Error("cache returned a shared slice")
	}
	if inner.RequestCount() != 1 {
		t.Errorf("inner called %d times, want 1", inner.RequestCount())
	}

	hits, misses, size := cached.Stats()
	if hits != 1 || misses != 1 || size != 1 {
		t.Errorf("Stats() = %d/%d/%d, want 1/1/1", hits, misses, size)
	}

	_, _ = cached.Embed(ctx, "b")
	_, _ = cached.Embed(ctx, "c") // cache full: reset, then store
	if _, _, size := cached.Stats(); size != 1 {
		t.Errorf("size after overflow = %d, want 1", size)
	}

	if cached.ModelID() != "mock" {
		t.Errorf("ModelID() = %q", cached.ModelID())
	}
}

func TestCachedEmbedder_ErrorNotCached(t *testing.T) {
	inner := NewMockEmbedder()
	inner.ShouldFail = true
	cached := NewCachedEmbedder(inner, 0)

	if _, err := cached.Embed(context.Background(), "a"); err == nil {
		t.Fatal("Embed() error = nil, want error")
	}
	if _, _, size := cached.Stats(); size != 0 {
		t.Errorf("size = %d, want 0", size)
	}
}

func TestOpenAIEmbedder(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"model": "all-MiniLM-L6-v2",
			"data": [{"object": "embedding", "index": 0, "embedding": [0.25, -0.5, 1]}],
			"usage": {"prompt_tokens": 2, "total_tokens": 2}
		}`))
	}))
	defer server.Close()

	e := NewOpenAIEmbedder(OpenAIConfig{BaseURL: server.URL, Model: "all-MiniLM-L6-v2"})
	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.25 || vec[1] != -0.5 || vec[2] != 1 {
		t.Errorf("vec = %v", vec)
	}
	if payload["input"] != "hello" || payload["model"] != "all-MiniLM-L6-v2" {
		t.Errorf("payload = %v", payload)
	}
}

func TestOpenAIEmbedder_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad input"}}`))
	}))
	defer server.Close()

	e := NewOpenAIEmbedder(OpenAIConfig{BaseURL: server.URL, Model: "m"})
	if _, err := e.Embed(context.Background(), "x"); err == nil {
		t.Fatal("Embed() error = nil, want error")
	}
}
