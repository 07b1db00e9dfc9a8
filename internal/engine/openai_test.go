package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestEngine(t *testing.T, handler http.HandlerFunc, guided bool) *OpenAIEngine {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewOpenAIEngine(OpenAIConfig{
		BaseURL:    server.URL,
		Model:      "test-model",
		GuidedJSON: guided,
	})
}

func readPayload(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	return payload
}

func TestOpenAIEngineGenerate(t *testing.T) {
	var payload map[string]any

	eng := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		payload = readPayload(t, r)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-1",
			"object": "text_completion",
			"created": 1,
			"model": "test-model",
			"choices": [{"index": 0, "text": "<think>x</think>hello", "finish_reason": "stop", "logprobs": null}],
			"usage": {"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10}
		}`))
	}, true)

	result, err := eng.Generate(context.Background(), &Request{
		Prompt: "say hi",
		Sampling: SamplingParams{
			Temperature:       0,
			MaxTokens:         100,
			TopK:              10,
			RepetitionPenalty: 1.03,
		},
		GuidedJSON: json.RawMessage(`{"type":"object"}`),
		RequestID:  "req-1",
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if result.Text != "<think>x</think>hello" {
		t.Errorf("Text = %q", result.Text)
	}
	if result.PromptTokens != 7 || result.CompletionTokens != 3 {
		t.Errorf("tokens = %d/%d, want 7/3", result.PromptTokens, result.CompletionTokens)
	}
	if result.FinishReason != "stop" {
		t.Errorf("FinishReason = %q", result.FinishReason)
	}
	if result.RequestID != "req-1" {
		t.Errorf("RequestID = %q", result.RequestID)
	}

	checks := map[string]any{
		"model":              "test-model",
		"prompt":             "say hi",
		"temperature":        float64(0),
		"max_tokens":         float64(100),
		"top_k":              float64(10),
		"repetition_penalty": 1.03,
	}
	for key, want := range checks {
		if got := payload[key]; got != want {
			t.Errorf("payload[%q] = %v, want %v", key, got, want)
		}
	}
	guided, ok := payload["guided_json"].(map[string]any)
	if !ok || guided["type"] != "object" {
		t.Errorf("payload[guided_json] = %v", payload["guided_json"])
	}
}

func TestOpenAIEngineGenerate_GuidedJSONDisabled(t *testing.T) {
	var payload map[string]any
	eng := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		payload = readPayload(t, r)
		_, _ = w.Write([]byte(`{"id":"c","object":"text_completion","created":1,"model":"m","choices":[{"index":0,"text":"{}","finish_reason":"stop","logprobs":null}]}`))
	}, false)

	_, err := eng.Generate(context.Background(), &Request{
		Prompt:     "p",
		GuidedJSON: json.RawMessage(`{"type":"object"}`),
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if _, ok := payload["guided_json"]; ok {
		t.Error("guided_json sent while disabled")
	}
	if _, ok := payload["top_k"]; ok {
		t.Error("top_k sent while zero")
	}
}

func TestOpenAIEngineGenerate_Error(t *testing.T) {
	calls := 0
	eng := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"CUDA out of memory","type":"server_error"}}`))
	}, false)

	_, err := eng.Generate(context.Background(), &Request{Prompt: "p"})
	if err == nil {
		t.Fatal("Generate() error = nil, want error")
	}

	var engErr *EngineError
	if !errors.As(err, &engErr) {
		t.Fatalf("error is %T, want *EngineError", err)
	}
	if engErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", engErr.StatusCode)
	}
	if engErr.Message == "" {
		t.Error("Message is empty")
	}
	if calls != 1 {
		t.Errorf("engine called %d times, want 1 (no retries)", calls)
	}
}

func TestOpenAIEngineGenerate_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	eng := NewOpenAIEngine(OpenAIConfig{BaseURL: url, Model: "m"})
	_, err := eng.Generate(context.Background(), &Request{Prompt: "p"})
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Errorf("error = %v, want ErrEngineUnavailable", err)
	}
}

func TestOpenAIEngineStream(t *testing.T) {
	var payload map[string]any
	eng := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		payload = readPayload(t, r)
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, text := range []string{"Hel", "", "lo"} {
			fmt.Fprintf(w, "data: {\"id\":\"c\",\"object\":\"text_completion\",\"created\":1,\"model\":\"served\",\"choices\":[{\"index\":0,\"text\":%q,\"finish_reason\":null,\"logprobs\":null}]}\n\n", text)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: {\"id\":\"c\",\"object\":\"text_completion\",\"created\":1,\"model\":\"served\",\"choices\":[{\"index\":0,\"text\":\"\",\"finish_reason\":\"length\",\"logprobs\":null}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}, false)

	var deltas []string
	result, err := eng.Stream(context.Background(), &Request{Prompt: "p", Sampling: SamplingParams{MaxTokens: 5}}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	if strings.Join(deltas, "|") != "Hel|lo" {
		t.Errorf("deltas = %q, want [Hel lo]", deltas)
	}
	if result.Text != "Hello" {
		t.Errorf("Text = %q, want Hello", result.Text)
	}
	if result.FinishReason != "length" {
		t.Errorf("FinishReason = %q, want length", result.FinishReason)
	}
	if result.Model != "served" {
		t.Errorf("Model = %q, want served", result.Model)
	}
	if payload["stream"] != true {
		t.Errorf("payload[stream] = %v, want true", payload["stream"])
	}
}

func TestOpenAIEngineStream_OutlivesCallTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for i := 0; i < 4; i++ {
			fmt.Fprintf(w, "data: {\"id\":\"c\",\"object\":\"text_completion\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"text\":\"t%d\",\"finish_reason\":null,\"logprobs\":null}]}\n\n", i)
			flusher.Flush()
			time.Sleep(60 * time.Millisecond)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(server.Close)

	eng := NewOpenAIEngine(OpenAIConfig{BaseURL: server.URL, Model: "m", Timeout: 100 * time.Millisecond})
	result, err := eng.Stream(context.Background(), &Request{Prompt: "p"}, func(string) error { return nil })
	if err != nil {
		t.Fatalf("Stream() error = %v, want a stream longer than the call timeout to finish", err)
	}
	if result.Text != "t0t1t2t3" {
		t.Errorf("Text = %q, want t0t1t2t3", result.Text)
	}
}

func TestOpenAIEngineGenerate_CallTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(server.Close)

	eng := NewOpenAIEngine(OpenAIConfig{BaseURL: server.URL, Model: "m", Timeout: 50 * time.Millisecond})
	_, err := eng.Generate(context.Background(), &Request{Prompt: "p"})
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Errorf("error = %v, want ErrEngineUnavailable", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := eng.Generate(ctx, &Request{Prompt: "p"}); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled ctx error = %v, want context.Canceled", err)
	}
}

func TestOpenAIEngineStream_CallbackStops(t *testing.T) {
	eng := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; i < 3; i++ {
			fmt.Fprintf(w, "data: {\"id\":\"c\",\"object\":\"text_completion\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"text\":\"t%d\",\"finish_reason\":null,\"logprobs\":null}]}\n\n", i)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}, false)

	stop := errors.New("client gone")
	count := 0
	_, err := eng.Stream(context.Background(), &Request{Prompt: "p"}, func(string) error {
		count++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Errorf("Stream() error = %v, want %v", err, stop)
	}
	if count != 1 {
		t.Errorf("callback called %d times, want 1", count)
	}
}

func TestOpenAIEngineHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		eng := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/models" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"test-model","object":"model","created":1,"owned_by":"vllm"}]}`))
		}, false)
		if err := eng.HealthCheck(context.Background()); err != nil {
			t.Errorf("HealthCheck() error = %v", err)
		}
	})

	t.Run("unhealthy", func(t *testing.T) {
		eng := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}, false)
		if err := eng.HealthCheck(context.Background()); err == nil {
			t.Error("HealthCheck() error = nil, want error")
		}
	})
}

func TestMapOpenAIError_Context(t *testing.T) {
	if err := mapOpenAIError(context.Canceled); !errors.Is(err, context.Canceled) {
		t.Errorf("mapOpenAIError(Canceled) = %v", err)
	}
}
