package endpoints

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alphadeepmind/llmserve/internal/prompts"
	"github.com/alphadeepmind/llmserve/internal/prompts/match"
)

func TestLLMCalls(t *testing.T) {
	h := newHarness(t)

	for _, p := range []string{"one", "two"} {
		if rec := h.get(generatePath(p, testKey)); rec.Code != http.StatusOK {
			t.Fatalf("generate status = %d", rec.Code)
		}
	}
	h.postJSON("/embedding", EmbeddingRequest{Text: "x", Key: testKey})
	h.calls("")

	t.Run("list", func(t *testing.T) {
		rec := h.get("/api/llmcalls?key=" + testKey + "&endpoint=generate")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		resp := decodeBody[LLMCallsResponse](t, rec)
		if resp.Total != 2 || len(resp.Calls) != 2 {
			t.Errorf("got %d calls (total %d), want 2", len(resp.Calls), resp.Total)
		}
	})

	t.Run("list empty", func(t *testing.T) {
		rec := h.get("/api/llmcalls?key=" + testKey + "&endpoint=stream")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"calls":[]`) {
			t.Errorf("body = %s", rec.Body.String())
		}
	})

	t.Run("invalid filter", func(t *testing.T) {
		rec := h.get("/api/llmcalls?key=" + testKey + "&success=maybe")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("counts", func(t *testing.T) {
		rec := h.get("/api/llmcalls/counts?key=" + testKey)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		counts := decodeBody[LLMCallCountsResponse](t, rec).Counts
		if counts[generateEndpointName] != 2 || counts[embeddingEndpointName] != 1 {
			t.Errorf("counts = %v", counts)
		}
	})

	t.Run("get", func(t *testing.T) {
		calls := h.calls(embeddingEndpointName)
		if len(calls) != 1 {
			t.Fatalf("recorded %d embedding calls", len(calls))
		}
		rec := h.get("/api/llmcalls/" + calls[0].ID + "?key=" + testKey)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if got := decodeBody[LLMCallResponse](t, rec).Call; got == nil || got.ID != calls[0].ID {
			t.Errorf("call = %+v", got)
		}

		rec = h.get("/api/llmcalls/missing?key=" + testKey)
		expectError(t, rec, http.StatusNotFound, "LLM call not found")
	})

	t.Run("prune", func(t *testing.T) {
		req := func(before string) *http.Request {
			q := url.Values{"key": {testKey}, "before": {before}}
			return newRequest(http.MethodDelete, "/api/llmcalls?"+q.Encode())
		}

		expectError(t, h.do(newRequest(http.MethodDelete, "/api/llmcalls?key="+testKey)), http.StatusBadRequest, "before is required")

		rec := h.do(req(time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)))
		if rec.Code != http.StatusOK || decodeBody[PruneLLMCallsResponse](t, rec).Deleted != 0 {
			t.Errorf("prune old: %d %s", rec.Code, rec.Body.String())
		}

		rec = h.do(req(time.Now().Add(time.Hour).UTC().Format(time.RFC3339)))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if n := decodeBody[PruneLLMCallsResponse](t, rec).Deleted; n != 3 {
			t.Errorf("deleted = %d, want 3", n)
		}
		if calls := h.calls(""); len(calls) != 0 {
			t.Errorf("%d calls remain after prune", len(calls))
		}
	})
}

func TestPrompts(t *testing.T) {
	h := newHarness(t)

	rec := h.get("/api/prompts?key=" + testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	list := decodeBody[PromptsListResponse](t, rec).Prompts
	keys := make(map[string]bool, len(list))
	for _, p := range list {
		keys[p.Key] = true
		if p.Hash == "" {
			t.Errorf("prompt %s has no hash", p.Key)
		}
	}
	for _, want := range []string{prompts.MathHintKey, match.PromptKey, "stream.wrapper.zh", "filetask.instruct.en", "similarity.analysis"} {
		if !keys[want] {
			t.Errorf("prompt %s not listed", want)
		}
	}

	rec = h.get("/api/prompts/" + match.PromptKey + "?key=" + testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeBody[prompts.EmbeddedPrompt](t, rec); got.Key != match.PromptKey || got.Text == "" {
		t.Errorf("prompt = %+v", got)
	}

	expectError(t, h.get("/api/prompts/nope?key="+testKey), http.StatusNotFound, "prompt not found: nope")
}

func TestSwagger(t *testing.T) {
	h := newHarness(t)

	rec := h.get("/swagger.json")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	for _, path := range []string{"/smart-match", "/file-task", "/stream"} {
		if !strings.Contains(rec.Body.String(), `"`+path+`"`) {
			t.Errorf("swagger document missing %s", path)
		}
	}

	rec = h.get("/swagger")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "swagger-ui") {
		t.Errorf("swagger ui: %d", rec.Code)
	}
}
