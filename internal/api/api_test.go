package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClient_GetAndPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "GET /health":
			fmt.Fprint(w, `{"status":"ok"}`)
		case "POST /echo":
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			body, _ := io.ReadAll(r.Body)
			w.Write(body)
		case "GET /fail":
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"error":"invalid key"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	ctx := context.Background()

	var health map[string]string
	if err := c.Get(ctx, "/health", &health); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if health["status"] != "ok" {
		t.Errorf("status = %q", health["status"])
	}

	var echoed map[string]string
	if err := c.Post(ctx, "/echo", map[string]string{"prompt": "hi"}, &echoed); err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if echoed["prompt"] != "hi" {
		t.Errorf("echoed = %v", echoed)
	}

	err := c.Get(ctx, "/fail", nil)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusForbidden || statusErr.Message != "invalid key" {
		t.Errorf("unexpected error: %+v", statusErr)
	}
}

func TestClient_PostMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		fmt.Fprintf(w, `{"result":"%s|%s|%s"}`, hdr.Filename, data, r.FormValue("instruction"))
	}))
	defer srv.Close()

	var out struct {
		Result string `json:"result"`
	}
	err := NewClient(srv.URL).PostMultipart(context.Background(), "/file-task",
		map[string]string{"instruction": "summarize"}, "file", "notes.txt", strings.NewReader("abc"), &out)
	if err != nil {
		t.Fatalf("PostMultipart failed: %v", err)
	}
	if out.Result != "notes.txt|abc|summarize" {
		t.Errorf("result = %q", out.Result)
	}
}

func TestClient_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: Hel\n\n: comment\n\ndata: lo\n\n")
	}))
	defer srv.Close()

	var got []string
	err := NewClient(srv.URL).Stream(context.Background(), "/stream", map[string]string{"prompt": "x"}, func(s string) error {
		got = append(got, s)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if strings.Join(got, "") != "Hello" || len(got) != 2 {
		t.Errorf("got %q", got)
	}
}

func TestClient_StreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"empty prompt"}`)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).Stream(context.Background(), "/stream", nil, func(string) error { return nil })
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 StatusError, got %v", err)
	}
}

func TestReadEvents(t *testing.T) {
	t.Run("multi-line data joined", func(t *testing.T) {
		var got []string
		err := readEvents(strings.NewReader("data: a\ndata: b\n\ndata: c\n\n"), func(s string) error {
			got = append(got, s)
			return nil
		})
		if err != nil {
			t.Fatalf("readEvents failed: %v", err)
		}
		if len(got) != 2 || got[0] != "a\nb" || got[1] != "c" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("error event", func(t *testing.T) {
		var got []string
		err := readEvents(strings.NewReader("data: partial\n\nevent: error\ndata: engine failed\n\n"), func(s string) error {
			got = append(got, s)
			return nil
		})
		var streamErr *StreamError
		if !errors.As(err, &streamErr) || streamErr.Message != "engine failed" {
			t.Fatalf("expected StreamError, got %v", err)
		}
		if len(got) != 1 || got[0] != "partial" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("unterminated final event", func(t *testing.T) {
		var got []string
		err := readEvents(strings.NewReader("data: tail"), func(s string) error {
			got = append(got, s)
			return nil
		})
		if err != nil || len(got) != 1 || got[0] != "tail" {
			t.Errorf("got %q, err %v", got, err)
		}
	})
}

func TestAPIKey(t *testing.T) {
	t.Setenv(APIKeyEnv, "from-env")
	SetAPIKey("")
	if got := APIKey(); got != "from-env" {
		t.Errorf("APIKey() = %q, want from-env", got)
	}
	SetAPIKey("explicit")
	defer SetAPIKey("")
	if got := APIKey(); got != "explicit" {
		t.Errorf("APIKey() = %q, want explicit", got)
	}
}

func TestOutputTo(t *testing.T) {
	data := map[string]int{"count": 3}

	var buf bytes.Buffer
	if err := OutputTo(&buf, OutputFormatJSON, data); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"count": 3`) {
		t.Errorf("json output = %q", buf.String())
	}

	buf.Reset()
	if err := OutputTo(&buf, OutputFormatYAML, data); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "count: 3" {
		t.Errorf("yaml output = %q", buf.String())
	}

	if err := OutputTo(&buf, OutputFormat("xml"), data); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestRenderTable(t *testing.T) {
	out := RenderTable([]string{"Endpoint", "Calls"}, [][]string{{"generate", "12"}, {"embedding"}}, []ColumnAlignment{AlignLeft, AlignRight})
	for _, want := range []string{"Endpoint", "generate", "12", "embedding"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if RenderTable(nil, nil, nil) != "" {
		t.Error("expected empty output without headers")
	}
}

func TestSetOutputFormat(t *testing.T) {
	defer SetOutputFormat("yaml")

	SetOutputFormat("table")
	if GetOutputFormat() != OutputFormatTable {
		t.Errorf("format = %q", GetOutputFormat())
	}
	SetOutputFormat("bogus")
	if GetOutputFormat() != DefaultOutput {
		t.Errorf("format = %q, want default", GetOutputFormat())
	}
}
