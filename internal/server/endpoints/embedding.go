package endpoints

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/alphadeepmind/llmserve/internal/api"
	"github.com/alphadeepmind/llmserve/internal/llmcall"
	"github.com/alphadeepmind/llmserve/internal/svcctx"
)

const embeddingEndpointName = "embedding"

// EmbeddingRequest is the body of POST /embedding.
type EmbeddingRequest struct {
	Text string `json:"text"`
	Key  string `json:"key"`
}

// EmbeddingResponse holds one vector.
type EmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// EmbeddingEndpoint handles POST /embedding.
type EmbeddingEndpoint struct{}

func (e *EmbeddingEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/embedding", e.handler
}

func (e *EmbeddingEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Embed text
//	@Description	Return the sentence embedding of a text as a unit-length vector
//	@Tags			embedding
//	@Accept			json
//	@Produce		json
//	@Param			request	body		EmbeddingRequest	true	"Text and key"
//	@Success		200		{object}	EmbeddingResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		403		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/embedding [post]
func (e *EmbeddingEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req EmbeddingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !authorize(w, r, req.Key) {
		return
	}

	ctx := r.Context()
	logger := svcctx.LoggerFrom(ctx)
	embedder := svcctx.EmbedderFrom(ctx)
	if embedder == nil {
		writeError(w, http.StatusInternalServerError, "embedding 失敗：embedder not available")
		return
	}

	start := time.Now()
	vec, err := embedder.Embed(ctx, req.Text)
	call := llmcall.FromResult(nil, err, start, llmcall.RecordOptions{
		Endpoint:  embeddingEndpointName,
		RequestID: svcctx.RequestIDFrom(ctx),
		Prompt:    req.Text,
		Model:     embedder.ModelID(),
	})
	if err != nil {
		record(ctx, call)
		logger.Error("embedding failed", "request_id", call.RequestID, "error", err)
		writeError(w, http.StatusInternalServerError, "embedding 失敗：embedding model error")
		return
	}
	call.Response = fmt.Sprintf("vector dim=%d", len(vec))
	record(ctx, call)

	writeJSON(w, http.StatusOK, EmbeddingResponse{Embedding: vec})
}

func (e *EmbeddingEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "embedding <text>",
		Short: "Embed a text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var resp EmbeddingResponse
			req := EmbeddingRequest{Text: args[0], Key: api.APIKey()}
			if err := client.Post(ctx, "/embedding", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
