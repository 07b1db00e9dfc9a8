package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alphadeepmind/llmserve/internal/config"
	"github.com/alphadeepmind/llmserve/internal/embedding"
	"github.com/alphadeepmind/llmserve/internal/engine"
	"github.com/alphadeepmind/llmserve/internal/home"
	"github.com/alphadeepmind/llmserve/internal/llmcall"
	"github.com/alphadeepmind/llmserve/internal/server/endpoints"
	"github.com/alphadeepmind/llmserve/internal/testutil"
)

type testServer struct {
	srv    *Server
	cfg    testutil.ServerConfig
	engine *engine.MockEngine
}

func newTestServer(t *testing.T, cfg testutil.ServerConfig) *testServer {
	t.Helper()

	mgr, err := config.NewManager(cfg.ConfigFile)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	h, err := home.New(cfg.HomeDir)
	if err != nil {
		t.Fatal(err)
	}

	eng := engine.NewMockEngine()
	srv, err := New(Config{
		ConfigManager: mgr,
		Home:          h,
		Engine:        eng,
		Embedder:      embedding.NewMockEmbedder(),
		Logger:        cfg.Logger,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testServer{srv: srv, cfg: cfg, engine: eng}
}

// start runs the server until the test ends.
func (ts *testServer) start(t *testing.T) <-chan error {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ts.srv.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		_ = testutil.WaitForShutdown(done, 30*time.Second)
	})

	if err := testutil.WaitForServer(ts.cfg.URL(), 15*time.Second); err != nil {
		t.Fatalf("server did not start: %v", err)
	}
	return done
}

func TestServer_FullLifecycle(t *testing.T) {
	cfg := testutil.NewServerConfig(t, "")
	ts := newTestServer(t, cfg)
	ts.engine.ResponseText = "<think>sum</think>2"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ts.srv.Start(ctx)
	}()
	if err := testutil.WaitForServer(cfg.URL(), 15*time.Second); err != nil {
		cancel()
		t.Fatalf("server did not start: %v", err)
	}
	client := testutil.HTTPClient()

	t.Run("health_endpoint", func(t *testing.T) {
		resp, err := client.Get(cfg.URL() + "/health")
		if err != nil {
			t.Fatalf("health check failed: %v", err)
		}
		defer resp.Body.Close()

		var health endpoints.HealthResponse
		if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.StatusCode != http.StatusOK || health.Status != "ok" {
			t.Errorf("health = %d %+v", resp.StatusCode, health)
		}
	})

	t.Run("ready_endpoint", func(t *testing.T) {
		resp, err := client.Get(cfg.URL() + "/ready")
		if err != nil {
			t.Fatalf("ready check failed: %v", err)
		}
		defer resp.Body.Close()

		var health endpoints.HealthResponse
		if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if health.Engine != "ok" || health.Model != "mock-model" {
			t.Errorf("ready = %+v", health)
		}
	})

	var requestID string
	t.Run("generate", func(t *testing.T) {
		q := url.Values{"prompt": {"1+1"}, "key": {cfg.APIKey}}
		resp, err := client.Get(cfg.URL() + "/generate?" + q.Encode())
		if err != nil {
			t.Fatalf("generate failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		var out endpoints.ResultResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		if out.Result != "<think>sum</think>2" {
			t.Errorf("result = %q", out.Result)
		}
		requestID = resp.Header.Get(RequestIDHeader)
		if requestID == "" {
			t.Error("response has no request ID")
		}
		if got := ts.engine.LastRequest().RequestID; got != requestID {
			t.Errorf("engine saw request ID %q, response has %q", got, requestID)
		}
	})

	t.Run("is_running", func(t *testing.T) {
		if !ts.srv.IsRunning() || !ts.srv.IsReady() {
			t.Error("server should be running and ready")
		}
	})

	cancel()
	if err := testutil.WaitForShutdown(done, 30*time.Second); err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}
	if ts.srv.IsRunning() {
		t.Error("IsRunning() = true after shutdown")
	}

	// Shutdown drains the recorder, so the call is on disk.
	store, err := llmcall.Open(filepath.Join(cfg.HomeDir, home.CallsDBName))
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer store.Close()
	calls, err := store.List(context.Background(), llmcall.QueryFilter{RequestID: requestID})
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 1 || calls[0].Endpoint != "generate" || calls[0].Model != "mock-model" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestServer_SingleInstance(t *testing.T) {
	cfg := testutil.NewServerConfig(t, "")
	first := newTestServer(t, cfg)
	first.start(t)

	second := newTestServer(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := second.srv.Start(ctx)
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Errorf("second Start() error = %v, want lock error", err)
	}
	if second.srv.IsRunning() {
		t.Error("second server marked running")
	}
}

func TestServer_AlreadyRunning(t *testing.T) {
	ts := newTestServer(t, testutil.NewServerConfig(t, ""))
	ts.start(t)

	if err := ts.srv.Start(context.Background()); err == nil {
		t.Error("Start() on running server should fail")
	}
}

func TestServer_EngineNeverReady(t *testing.T) {
	ts := newTestServer(t, testutil.NewServerConfig(t, ""))
	ts.engine.SetHealthError(engine.ErrEngineUnavailable)

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	err := ts.srv.Start(ctx)
	if err == nil {
		t.Fatal("Start() should fail when the engine never becomes ready")
	}
	if ts.srv.IsRunning() || ts.srv.IsReady() {
		t.Error("server state not reset after failed start")
	}
}

func TestRequireInit(t *testing.T) {
	ts := newTestServer(t, testutil.NewServerConfig(t, ""))
	handler := ts.srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/generate?prompt=hi&key="+testutil.TestAPIKey, nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("generate before start: status = %d, want 503", rec.Code)
	}
	if ts.engine.RequestCount() != 0 {
		t.Error("engine called before start")
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health before start: status = %d, want 200", rec.Code)
	}
}

func TestRequestID(t *testing.T) {
	ts := newTestServer(t, testutil.NewServerConfig(t, ""))
	handler := ts.srv.Handler()

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if id := rec.Header().Get(RequestIDHeader); len(id) != 36 {
			t.Errorf("request ID = %q", id)
		}
	})

	t.Run("client supplied", func(t *testing.T) {
		const id = "5b0d6f0e-8f7e-4b7a-9a53-0d2f4c1e9b11"
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(RequestIDHeader, id)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if got := rec.Header().Get(RequestIDHeader); got != id {
			t.Errorf("request ID = %q, want %q", got, id)
		}
	})

	t.Run("malformed replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(RequestIDHeader, "abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if got := rec.Header().Get(RequestIDHeader); got == "abc" || got == "" {
			t.Errorf("request ID = %q", got)
		}
	})
}

func TestCORS(t *testing.T) {
	cfg := testutil.NewServerConfig(t, "")
	// Restrict the allowlist to one origin.
	data, err := os.ReadFile(cfg.ConfigFile)
	if err != nil {
		t.Fatal(err)
	}
	data = []byte(strings.Replace(string(data), "  host: 127.0.0.1\n",
		"  host: 127.0.0.1\n  cors_origins:\n    - https://app.example.com\n", 1))
	if err := os.WriteFile(cfg.ConfigFile, data, 0o644); err != nil {
		t.Fatal(err)
	}
	handler := newTestServer(t, cfg).srv.Handler()

	tests := []struct {
		name       string
		method     string
		origin     string
		preflight  bool
		wantStatus int
		wantOrigin string
	}{
		{"allowed simple", http.MethodGet, "https://app.example.com", false, http.StatusOK, "https://app.example.com"},
		{"disallowed simple", http.MethodGet, "https://evil.example.com", false, http.StatusOK, ""},
		{"allowed preflight", http.MethodOptions, "https://app.example.com", true, http.StatusNoContent, "https://app.example.com"},
		{"disallowed preflight", http.MethodOptions, "https://evil.example.com", true, http.StatusForbidden, ""},
		{"no origin", http.MethodGet, "", false, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/health", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
				req.Header.Set("Access-Control-Request-Headers", "content-type")
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if tt.wantOrigin != "" && rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
				t.Error("credentials not allowed")
			}
			if tt.preflight && tt.wantOrigin != "" {
				if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "content-type" {
					t.Errorf("Allow-Headers = %q", got)
				}
			}
		})
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Setenv("API_KEY", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("auth:\n  api_key: \"\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	mgr, err := config.NewManager(path)
	if err != nil {
		t.Fatal(err)
	}
	_, err = New(Config{ConfigManager: mgr, Engine: engine.NewMockEngine(), Logger: testutil.Logger(t)})
	if err == nil || !strings.Contains(err.Error(), "auth.api_key") {
		t.Errorf("New() error = %v, want api key error", err)
	}

	if _, err := New(Config{}); err == nil {
		t.Error("New() without config manager should fail")
	}
}
