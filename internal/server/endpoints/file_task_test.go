package endpoints

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alphadeepmind/llmserve/internal/prompts/filetask"
)

func multipartRequest(t *testing.T, fields map[string]string, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/file-task", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestFileTask(t *testing.T) {
	t.Run("summarizes text file", func(t *testing.T) {
		h := newHarness(t)
		h.engine.ResponseText = "<think>reading</think>\n\n# Summary\nShort."

		req := multipartRequest(t, map[string]string{"key": testKey}, "notes.txt", []byte("Quarterly results were strong."))
		rec := h.do(req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		if got := decodeBody[ResultResponse](t, rec).Result; got != "# Summary\nShort." {
			t.Errorf("result = %q", got)
		}

		prompt := h.engine.LastRequest().Prompt
		for _, want := range []string{"notes.txt", "Summarize", "Quarterly results were strong."} {
			if !strings.Contains(prompt, want) {
				t.Errorf("prompt missing %q:\n%s", want, prompt)
			}
		}
		if s := h.engine.LastRequest().Sampling; s.MaxTokens != 1000 || s.RepetitionPenalty != 1.03 {
			t.Errorf("sampling = %+v", s)
		}

		calls := h.calls(fileTaskEndpointName)
		if len(calls) != 1 || calls[0].PromptKey != filetask.SummarizeEnKey {
			t.Errorf("calls = %+v", calls)
		}
	})

	t.Run("instruction selects instruct template", func(t *testing.T) {
		h := newHarness(t)
		req := multipartRequest(t, map[string]string{"key": testKey, "instruction": "列出重點"}, "notes.txt", []byte("hello"))
		if rec := h.do(req); rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if !strings.Contains(h.engine.LastRequest().Prompt, "列出重點") {
			t.Errorf("prompt missing instruction")
		}
		if calls := h.calls(fileTaskEndpointName); len(calls) != 1 || calls[0].PromptKey != filetask.InstructZhKey {
			t.Errorf("calls = %+v", calls)
		}
	})

	t.Run("unsupported format is a soft failure", func(t *testing.T) {
		h := newHarness(t)
		req := multipartRequest(t, map[string]string{"key": testKey}, "data.csv", []byte("a,b\n1,2"))
		rec := h.do(req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if got := decodeBody[ResultResponse](t, rec).Result; got != msgUnsupported {
			t.Errorf("result = %q", got)
		}
		if h.engine.RequestCount() != 0 {
			t.Error("engine called for unsupported file")
		}
	})

	t.Run("oversized upload", func(t *testing.T) {
		h := newHarness(t)
		req := multipartRequest(t, map[string]string{"key": testKey}, "big.txt", bytes.Repeat([]byte("a"), 70000))
		expectError(t, h.do(req), http.StatusRequestEntityTooLarge, "file too large, limit is 65536 bytes")
		if h.engine.RequestCount() != 0 {
			t.Error("engine called for oversized upload")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		h := newHarness(t)
		req := multipartRequest(t, map[string]string{"key": testKey}, "", nil)
		expectError(t, h.do(req), http.StatusBadRequest, "file is required")
	})

	t.Run("wrong key", func(t *testing.T) {
		h := newHarness(t)
		req := multipartRequest(t, map[string]string{"key": "nope"}, "notes.txt", []byte("hello"))
		expectError(t, h.do(req), http.StatusForbidden, msgInvalidKey)
	})

	t.Run("corrupt document", func(t *testing.T) {
		h := newHarness(t)
		req := multipartRequest(t, map[string]string{"key": testKey}, "report.pdf", []byte("not a pdf"))
		expectError(t, h.do(req), http.StatusInternalServerError, "文件處理失敗：document could not be parsed")
	})

	t.Run("engine failure", func(t *testing.T) {
		h := newHarness(t)
		h.engine.ShouldFail = true
		req := multipartRequest(t, map[string]string{"key": testKey}, "notes.txt", []byte("hello"))
		expectError(t, h.do(req), http.StatusInternalServerError, "文件處理失敗：inference engine returned status 500")
	})
}
