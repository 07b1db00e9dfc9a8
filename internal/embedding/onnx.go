package embedding

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	defaultMaxSeqLen    = 256
	defaultEmbeddingDim = 384 // all-MiniLM-L6-v2
	defaultOutputName   = "last_hidden_state"
)

// ONNXConfig configures a local sentence-transformer model.
type ONNXConfig struct {
	LibraryPath   string // onnxruntime shared library; empty uses the platform default
	ModelPath     string // model.onnx
	TokenizerPath string // tokenizer.json
	ModelID       string
	MaxSeqLen     int
	EmbeddingDim  int
	OutputName    string
	Threads       int
}

// ONNXEmbedder runs a BERT-style encoder with ONNX Runtime, mean-pools the
// token states over the attention mask and L2-normalizes the result.
//
// The session binds fixed-size tensors, so calls are serialized.
type ONNXEmbedder struct {
	cfg       ONNXConfig
	tokenizer *tokenizer.Tokenizer

	mu            sync.Mutex
	session       *ort.AdvancedSession
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	output        *ort.Tensor[float32]
	closed        bool
}

// NewONNXEmbedder loads the tokenizer and model and prepares the session.
func NewONNXEmbedder(cfg ONNXConfig) (*ONNXEmbedder, error) {
	cfg = cfg.withDefaults()

	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model not found at %s: %w", cfg.ModelPath, err)
	}
	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}
	tk.WithTruncation(&tokenizer.TruncationParams{
		MaxLength: cfg.MaxSeqLen,
		Strategy:  tokenizer.LongestFirst,
	})

	if !ort.IsInitialized() {
		if cfg.LibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.LibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
		}
	}

	e := &ONNXEmbedder{cfg: cfg, tokenizer: tk}
	if err := e.initSession(); err != nil {
		e.destroyTensors()
		return nil, err
	}
	return e, nil
}

func (cfg ONNXConfig) withDefaults() ONNXConfig {
	if cfg.MaxSeqLen <= 0 {
		cfg.MaxSeqLen = defaultMaxSeqLen
	}
	if cfg.EmbeddingDim <= 0 {
		cfg.EmbeddingDim = defaultEmbeddingDim
	}
	if cfg.OutputName == "" {
		cfg.OutputName = defaultOutputName
	}
	if cfg.Threads <= 0 {
		cfg.Threads = 2
	}
	if cfg.ModelID == "" {
		cfg.ModelID = filepath.Base(filepath.Dir(cfg.ModelPath))
	}
	return cfg
}

func (e *ONNXEmbedder) initSession() error {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() { _ = options.Destroy() }()

	if err := options.SetIntraOpNumThreads(e.cfg.Threads); err != nil {
		return fmt.Errorf("failed to set threads: %w", err)
	}

	seqShape := ort.NewShape(1, int64(e.cfg.MaxSeqLen))
	if e.inputIDs, err = ort.NewEmptyTensor[int64](seqShape); err != nil {
		return fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	if e.attentionMask, err = ort.NewEmptyTensor[int64](seqShape); err != nil {
		return fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	if e.tokenTypeIDs, err = ort.NewEmptyTensor[int64](seqShape); err != nil {
		return fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	outShape := ort.NewShape(1, int64(e.cfg.MaxSeqLen), int64(e.cfg.EmbeddingDim))
	if e.output, err = ort.NewEmptyTensor[float32](outShape); err != nil {
		return fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		e.cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{e.cfg.OutputName},
		[]ort.Value{e.inputIDs, e.attentionMask, e.tokenTypeIDs},
		[]ort.Value{e.output},
		options,
	)
	if err != nil {
		return fmt.Errorf("failed to create ONNX session: %w", err)
	}
	e.session = session
	return nil
}

// ModelID returns the model identifier.
func (e *ONNXEmbedder) ModelID() string {
	return e.cfg.ModelID
}

// Embed tokenizes text, runs the model and returns a unit-length vector.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	enc, err := e.tokenizer.EncodeSingle(text, true)
	if err != nil {
		return nil, fmt.Errorf("failed to tokenize: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}

	fillInputs(e.inputIDs.GetData(), enc.Ids)
	fillInputs(e.attentionMask.GetData(), enc.AttentionMask)
	fillInputs(e.tokenTypeIDs.GetData(), enc.TypeIds)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	vec := meanPool(e.output.GetData(), e.attentionMask.GetData(), e.cfg.EmbeddingDim)
	return normalizeL2(vec), nil
}

// Close releases the session and tensors.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.session != nil {
		_ = e.session.Destroy()
		e.session = nil
	}
	e.destroyTensors()
	return nil
}

func (e *ONNXEmbedder) destroyTensors() {
	if e.inputIDs != nil {
		_ = e.inputIDs.Destroy()
	}
	if e.attentionMask != nil {
		_ = e.attentionMask.Destroy()
	}
	if e.tokenTypeIDs != nil {
		_ = e.tokenTypeIDs.Destroy()
	}
	if e.output != nil {
		_ = e.output.Destroy()
	}
}

// fillInputs copies src into dst, truncating or zero-padding to len(dst).
func fillInputs(dst []int64, src []int) {
	n := min(len(src), len(dst))
	for i := 0; i < n; i++ {
		dst[i] = int64(src[i])
	}
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

// meanPool averages token states [seq, dim] over positions where mask is set.
func meanPool(states []float32, mask []int64, dim int) []float32 {
	out := make([]float32, dim)
	var count float32
	for pos, m := range mask {
		if m == 0 {
			continue
		}
		row := states[pos*dim : (pos+1)*dim]
		for i, v := range row {
			out[i] += v
		}
		count++
	}
	if count == 0 {
		return out
	}
	for i := range out {
		out[i] /= count
	}
	return out
}

var _ Embedder = (*ONNXEmbedder)(nil)
