package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/alphadeepmind/llmserve/internal/engine"
	"github.com/alphadeepmind/llmserve/internal/llmcall"
	"github.com/alphadeepmind/llmserve/internal/svcctx"
)

// User-facing messages.
const (
	msgInvalidKey     = "無效的 API 金鑰"
	msgPromptRequired = "需要提供提示詞"
	msgPromptTooLong  = "提示詞過長，最多 %d 字元"
	msgUnsupported    = "不支援的文件格式，請上傳 PDF、Word 或 TXT。"
	msgNotReady       = "inference engine not available"
)

// ResultResponse wraps a plain text result.
type ResultResponse struct {
	Result string `json:"result"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// authorize compares key with the configured shared key and writes a 403
// when they differ. The configured key is read per request so that config
// reloads take effect immediately.
func authorize(w http.ResponseWriter, r *http.Request, key string) bool {
	expected := svcctx.ConfigFrom(r.Context()).ResolvedAPIKey()
	if expected == "" || key != expected {
		svcctx.LoggerFrom(r.Context()).Warn("rejected request with invalid key",
			"path", r.URL.Path,
			"remote", r.RemoteAddr)
		writeError(w, http.StatusForbidden, msgInvalidKey)
		return false
	}
	return true
}

// decodeJSON decodes a JSON request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

// checkPrompt enforces the non-empty and maximum length rules on a prompt.
// Length is counted in characters, not bytes.
func checkPrompt(w http.ResponseWriter, r *http.Request, prompt string) bool {
	if prompt == "" {
		writeError(w, http.StatusBadRequest, msgPromptRequired)
		return false
	}
	limit := svcctx.ConfigFrom(r.Context()).Limits.MaxPromptChars
	if n := utf8.RuneCountInString(prompt); limit > 0 && n > limit {
		svcctx.LoggerFrom(r.Context()).Warn("prompt too long", "chars", n, "limit", limit)
		writeError(w, http.StatusBadRequest, fmt.Sprintf(msgPromptTooLong, limit))
		return false
	}
	return true
}

// checkMaxTokens rejects non-positive token budgets.
func checkMaxTokens(w http.ResponseWriter, maxTokens int) bool {
	if maxTokens < 1 {
		writeError(w, http.StatusBadRequest, "max_tokens must be at least 1")
		return false
	}
	return true
}

// floatParam parses an optional float form or query value.
func floatParam(r *http.Request, name string, def float64) (float64, error) {
	v := r.FormValue(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q must be a number", name, v)
	}
	return f, nil
}

// intParam parses an optional integer form or query value.
func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.FormValue(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q must be an integer", name, v)
	}
	return n, nil
}

// summarize turns an engine error into a short client-safe description.
// Full details stay in the log and the call record.
func summarize(err error) string {
	var engErr *engine.EngineError
	switch {
	case errors.Is(err, context.Canceled):
		return "request cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "inference timed out"
	case errors.Is(err, engine.ErrEngineUnavailable):
		return "inference engine unavailable"
	case errors.As(err, &engErr) && engErr.StatusCode != 0:
		return fmt.Sprintf("inference engine returned status %d", engErr.StatusCode)
	default:
		return "inference failed"
	}
}

// invocation describes one engine call made by a handler.
type invocation struct {
	endpoint  string
	promptKey string
	prompt    string
	sampling  engine.SamplingParams
	guided    json.RawMessage

	// temperature is the client-supplied value, kept for the call record.
	temperature *float64
}

func (inv invocation) request(ctx context.Context) *engine.Request {
	return &engine.Request{
		Prompt:     inv.prompt,
		Sampling:   inv.sampling,
		GuidedJSON: inv.guided,
		RequestID:  svcctx.RequestIDFrom(ctx),
	}
}

func (inv invocation) record(ctx context.Context, eng engine.Engine, res *engine.Result, err error, start time.Time) *llmcall.Call {
	opts := llmcall.RecordOptions{
		Endpoint:    inv.endpoint,
		RequestID:   svcctx.RequestIDFrom(ctx),
		PromptKey:   inv.promptKey,
		Prompt:      inv.prompt,
		Temperature: inv.temperature,
	}
	if eng != nil {
		opts.Model = eng.Model()
	}
	if reg := svcctx.PromptsFrom(ctx); reg != nil && inv.promptKey != "" {
		opts.PromptHash = reg.Hash(inv.promptKey)
	}
	return llmcall.FromResult(res, err, start, opts)
}

// generate runs a blocking engine call. The returned call record is not yet
// submitted so that callers can add parse diagnostics first.
func generate(ctx context.Context, inv invocation) (*engine.Result, *llmcall.Call, error) {
	logger := svcctx.LoggerFrom(ctx)
	eng := svcctx.EngineFrom(ctx)
	start := time.Now()
	if eng == nil {
		err := engine.ErrEngineUnavailable
		return nil, inv.record(ctx, nil, nil, err, start), err
	}

	logger.Debug("engine call",
		"endpoint", inv.endpoint,
		"prompt_key", inv.promptKey,
		"request_id", svcctx.RequestIDFrom(ctx),
		"prompt", inv.prompt)

	res, err := eng.Generate(ctx, inv.request(ctx))
	call := inv.record(ctx, eng, res, err, start)
	if err != nil {
		logger.Error("engine call failed",
			"endpoint", inv.endpoint,
			"request_id", call.RequestID,
			"error", err)
		return nil, call, err
	}

	logger.Debug("engine output",
		"endpoint", inv.endpoint,
		"request_id", call.RequestID,
		"latency_ms", call.LatencyMs,
		"raw", res.Text)
	return res, call, nil
}

// record submits a call record to the recorder, if one is configured.
func record(ctx context.Context, call *llmcall.Call) {
	svcctx.RecorderFrom(ctx).Record(call)
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// guidedSchema returns the bare JSON schema of a response_format style
// wrapper ({"json_schema": {"schema": ...}}) for guided decoding.
func guidedSchema(wrapper map[string]any) json.RawMessage {
	if js, ok := wrapper["json_schema"].(map[string]any); ok {
		if inner, ok := js["schema"]; ok {
			return mustMarshal(inner)
		}
	}
	return mustMarshal(wrapper)
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}
