package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"github.com/alphadeepmind/llmserve/internal/api"
	"github.com/alphadeepmind/llmserve/internal/config"
	"github.com/alphadeepmind/llmserve/internal/embedding"
	"github.com/alphadeepmind/llmserve/internal/engine"
	"github.com/alphadeepmind/llmserve/internal/home"
	"github.com/alphadeepmind/llmserve/internal/llmcall"
	"github.com/alphadeepmind/llmserve/internal/prompts"
	"github.com/alphadeepmind/llmserve/internal/server/endpoints"
	"github.com/alphadeepmind/llmserve/internal/svcctx"
)

// Server is the main llmserve HTTP server.
// When the engine container is managed, it is started with the server and
// stopped on shutdown.
type Server struct {
	httpServer       *http.Server
	dockerManager    *engine.DockerManager
	engine           engine.Engine
	embedder         embedding.Embedder
	store            *llmcall.Store
	recorder         *llmcall.Recorder
	configMgr        *config.Manager
	home             *home.Dir
	lock             *flock.Flock
	logger           *slog.Logger
	services         *svcctx.Services
	endpointRegistry *api.Registry

	// ready is set once the engine answered its health check.
	ready atomic.Bool

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// ConfigManager provides configuration with hot-reload support (required).
	ConfigManager *config.Manager
	// Home is the llmserve home directory. When nil, no instance lock is
	// taken and the call store needs an explicit path.
	Home *home.Dir
	// Host and Port override server.host and server.port.
	Host string
	Port string
	// Engine replaces the configured OpenAI-compatible engine (tests).
	Engine engine.Engine
	// Embedder replaces the configured embedder (tests).
	Embedder embedding.Embedder
	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.ConfigManager.SetLogger(cfg.Logger)

	c := cfg.ConfigManager.Get()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	host, port := c.Server.Host, c.Server.Port
	if cfg.Host != "" {
		host = cfg.Host
	}
	if cfg.Port != "" {
		port = cfg.Port
	}

	s := &Server{
		configMgr: cfg.ConfigManager,
		home:      cfg.Home,
		logger:    cfg.Logger,
		engine:    cfg.Engine,
		embedder:  cfg.Embedder,
	}
	if cfg.Home != nil {
		s.lock = flock.New(cfg.Home.LockPath())
	}

	if c.Engine.Docker.Enabled {
		dm, err := NewDockerManager(c, cfg.Home)
		if err != nil {
			return nil, err
		}
		s.dockerManager = dm
	}

	if s.engine == nil {
		baseURL := c.Engine.BaseURL
		if s.dockerManager != nil {
			baseURL = s.dockerManager.URL()
		}
		s.engine = engine.NewOpenAIEngine(engine.OpenAIConfig{
			BaseURL:    baseURL,
			APIKey:     c.ResolvedEngineAPIKey(),
			Model:      c.Engine.Model,
			Timeout:    c.EngineTimeout(),
			GuidedJSON: c.Engine.GuidedJSON,
		})
	}

	if s.embedder == nil {
		emb, err := newEmbedder(c, cfg.Home)
		if err != nil {
			// The service still answers generation requests without embeddings.
			cfg.Logger.Warn("embedder unavailable", "type", c.Embedding.Type, "error", err)
		} else {
			s.embedder = embedding.NewCachedEmbedder(emb, c.Embedding.CacheSize)
		}
	}

	registry := prompts.NewRegistry(cfg.Logger)
	endpoints.RegisterPrompts(registry)

	if c.Store.Enabled {
		path := c.Store.Path
		if path == "" && cfg.Home != nil {
			path = cfg.Home.CallsDBPath()
		}
		if path == "" {
			return nil, errors.New("store.path is required when no home directory is set")
		}
		store, err := llmcall.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open call store: %w", err)
		}
		s.store = store
		s.recorder = llmcall.NewRecorder(llmcall.RecorderConfig{
			Store:  store,
			Logger: cfg.Logger,
		})
	}

	s.services = &svcctx.Services{
		Config:       cfg.ConfigManager,
		Engine:       s.engine,
		Prompts:      registry,
		Recorder:     s.recorder,
		LLMCallStore: s.store,
		Logger:       cfg.Logger,
		Home:         cfg.Home,
	}
	// Avoid storing a typed nil in the interface.
	if s.embedder != nil {
		s.services.Embedder = s.embedder
	}

	cfg.ConfigManager.OnChange(func(nc *config.Config) {
		if nc.Engine.Model != c.Engine.Model || nc.Engine.BaseURL != c.Engine.BaseURL {
			cfg.Logger.Warn("engine settings changed, restart to apply",
				"model", nc.Engine.Model,
				"base_url", nc.Engine.BaseURL)
		}
		if nc.ResolvedAPIKey() == "" {
			cfg.Logger.Warn("reloaded config has no API key, all requests will be rejected")
		}
	})

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{Docker: s.dockerManager}) {
		s.endpointRegistry.Register(ep)
	}

	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(host, port),
		Handler:      s.withCORS(s.withRequestID(s.withServices(mux))),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: c.EngineTimeout() + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// NewDockerManager creates the manager for the engine container described by c.
// An empty engine.docker.model_path mounts {home}/models when h is set.
func NewDockerManager(c *config.Config, h *home.Dir) (*engine.DockerManager, error) {
	modelPath := c.Engine.Docker.ModelPath
	if modelPath == "" && h != nil {
		modelPath = h.ModelsPath()
	}
	dm, err := engine.NewDockerManager(engine.DockerConfig{
		ContainerName: c.Engine.Docker.ContainerName,
		Image:         c.Engine.Docker.Image,
		Model:         c.Engine.Model,
		ModelPath:     modelPath,
		HostPort:      c.Engine.Docker.HostPort,
		GPU:           c.Engine.Docker.GPU,
		ExtraArgs:     c.Engine.Docker.ExtraArgs,
		ReadyTimeout:  c.ReadyTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create docker manager: %w", err)
	}
	return dm, nil
}

func newEmbedder(c *config.Config, h *home.Dir) (embedding.Embedder, error) {
	switch strings.ToLower(c.Embedding.Type) {
	case "openai":
		return embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			BaseURL: c.Embedding.BaseURL,
			APIKey:  config.ResolveEnvVars(c.Embedding.APIKey),
			Model:   c.Embedding.Model,
		}), nil
	default:
		onnx := c.Embedding.ONNX
		modelPath := onnx.ModelPath
		if modelPath == "" && h != nil {
			modelPath = h.EmbeddingModelPath()
		}
		tokenizerPath := onnx.TokenizerPath
		if tokenizerPath == "" && modelPath != "" {
			tokenizerPath = strings.TrimSuffix(modelPath, "model.onnx") + "tokenizer.json"
		}
		return embedding.NewONNXEmbedder(embedding.ONNXConfig{
			LibraryPath:   onnx.LibraryPath,
			ModelPath:     modelPath,
			TokenizerPath: tokenizerPath,
			ModelID:       c.Embedding.Model,
			MaxSeqLen:     onnx.MaxSeqLen,
		})
	}
}

// Start starts the server and, when configured, the engine container.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if s.lock != nil {
		ok, err := s.lock.TryLock()
		if err != nil {
			s.setNotRunning()
			return fmt.Errorf("failed to acquire lock: %w", err)
		}
		if !ok {
			s.closeResources()
			s.setNotRunning()
			return fmt.Errorf("another llmserve instance is already running (lock %s)", s.lock.Path())
		}
	}

	c := s.configMgr.Get()
	s.configMgr.WatchConfig()

	if s.dockerManager != nil {
		if err := s.dockerManager.ValidateExisting(ctx); err != nil {
			_ = s.shutdown()
			return fmt.Errorf("existing engine container incompatible: %w", err)
		}
		s.logger.Info("starting engine container", "model", c.Engine.Model)
		if err := s.dockerManager.Start(ctx); err != nil {
			_ = s.shutdown()
			return fmt.Errorf("failed to start engine container: %w", err)
		}
	}

	s.logger.Info("waiting for inference engine",
		"engine", s.engine.Name(),
		"model", s.engine.Model(),
		"timeout", c.ReadyTimeout())
	if err := engine.WaitReady(ctx, s.engine, c.ReadyTimeout()); err != nil {
		_ = s.shutdown()
		return err
	}
	s.ready.Store(true)
	s.logger.Info("inference engine is ready", "model", s.engine.Model())

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown drains HTTP, stops the engine container and releases resources.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")
	s.ready.Store(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.dockerManager != nil {
		s.logger.Info("stopping engine container")
		if err := s.dockerManager.Stop(shutdownCtx); err != nil {
			s.logger.Error("engine container stop error", "error", err)
		}
		if err := s.dockerManager.Close(); err != nil {
			s.logger.Error("docker client close error", "error", err)
		}
	}

	s.closeResources()

	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("failed to release lock", "error", err)
		}
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

// closeResources flushes call history and releases the store and embedder.
func (s *Server) closeResources() {
	// The recorder drains its queue into the store before the store closes.
	s.recorder.Close()
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("call store close error", "error", err)
		}
	}
	if s.embedder != nil {
		if err := s.embedder.Close(); err != nil {
			s.logger.Error("embedder close error", "error", err)
		}
	}
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// IsReady reports whether the engine is up and inference routes are served.
func (s *Server) IsReady() bool {
	return s.ready.Load()
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Engine returns the inference engine client.
func (s *Server) Engine() engine.Engine {
	return s.engine
}

// LLMCallStore returns the call store, or nil when history is disabled.
func (s *Server) LLMCallStore() *llmcall.Store {
	return s.store
}
