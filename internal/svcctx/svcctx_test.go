package svcctx

import (
	"context"
	"testing"

	"github.com/alphadeepmind/llmserve/internal/engine"
)

func TestExtractors_Empty(t *testing.T) {
	ctx := context.Background()

	if ServicesFrom(ctx) != nil {
		t.Error("expected nil services")
	}
	if EngineFrom(ctx) != nil {
		t.Error("expected nil engine")
	}
	if LoggerFrom(ctx) == nil {
		t.Error("expected default logger")
	}
	if cfg := ConfigFrom(ctx); cfg == nil || cfg.Limits.MaxPromptChars != 4000 {
		t.Errorf("expected default config, got %+v", cfg)
	}
	// Nil recorder must be usable.
	RecorderFrom(ctx).Record(nil)
}

func TestExtractors_WithServices(t *testing.T) {
	eng := engine.NewMockEngine()
	ctx := WithServices(context.Background(), &Services{Engine: eng})

	if EngineFrom(ctx) != eng {
		t.Error("expected attached engine")
	}
	if LLMCallStoreFrom(ctx) != nil {
		t.Error("expected nil store")
	}
}

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	if RequestIDFrom(ctx) != "" {
		t.Error("expected empty request ID")
	}
	ctx = WithRequestID(ctx, "req-1")
	if RequestIDFrom(ctx) != "req-1" {
		t.Errorf("RequestIDFrom = %q", RequestIDFrom(ctx))
	}
}
