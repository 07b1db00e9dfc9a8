package endpoints

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/alphadeepmind/llmserve/internal/api"
	"github.com/alphadeepmind/llmserve/internal/engine"
	"github.com/alphadeepmind/llmserve/internal/svcctx"
)

// HealthResponse is the response for health check endpoints.
type HealthResponse struct {
	Status    string `json:"status"`
	Engine    string `json:"engine,omitempty"`
	Model     string `json:"model,omitempty"`
	Embedding string `json:"embedding,omitempty"`
	Container string `json:"container,omitempty"`
}

// HealthEndpoint handles GET /health.
type HealthEndpoint struct{}

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/health", e.handler
}

func (e *HealthEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Liveness check
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/health [get]
func (e *HealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (e *HealthEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/health", &resp); err != nil {
				return err
			}
			fmt.Printf("Status: %s\n", resp.Status)
			return nil
		},
	}
}

// ReadyEndpoint handles GET /ready.
type ReadyEndpoint struct {
	// Docker is set by the server when it manages the engine container.
	Docker *engine.DockerManager
}

func (e *ReadyEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/ready", e.handler
}

func (e *ReadyEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Readiness check
//	@Description	Report engine and embedder status. Returns 503 when the engine is unreachable.
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Failure		503	{object}	HealthResponse
//	@Router			/ready [get]
func (e *ReadyEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := HealthResponse{Status: "ok", Engine: "ok", Embedding: "ok"}

	if e.Docker != nil {
		status, err := e.Docker.Status(ctx)
		if err != nil {
			resp.Container = "error"
		} else {
			resp.Container = string(status)
		}
	}

	if emb := svcctx.EmbedderFrom(ctx); emb == nil {
		resp.Embedding = "not_initialized"
	}

	eng := svcctx.EngineFrom(ctx)
	if eng == nil {
		resp.Status = "degraded"
		resp.Engine = "not_initialized"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Model = eng.Model()
	if err := eng.HealthCheck(ctx); err != nil {
		svcctx.LoggerFrom(ctx).Warn("engine health check failed", "error", err)
		resp.Status = "degraded"
		resp.Engine = "unhealthy"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *ReadyEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "Check server readiness (includes the inference engine)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/ready", &resp); err != nil {
				return err
			}
			fmt.Printf("Status:    %s\n", resp.Status)
			fmt.Printf("Engine:    %s\n", resp.Engine)
			if resp.Model != "" {
				fmt.Printf("Model:     %s\n", resp.Model)
			}
			fmt.Printf("Embedding: %s\n", resp.Embedding)
			if resp.Container != "" {
				fmt.Printf("Container: %s\n", resp.Container)
			}
			return nil
		},
	}
}
