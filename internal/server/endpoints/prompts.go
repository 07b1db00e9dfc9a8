package endpoints

import (
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/alphadeepmind/llmserve/internal/api"
	"github.com/alphadeepmind/llmserve/internal/prompts"
	"github.com/alphadeepmind/llmserve/internal/svcctx"
)

// PromptsListResponse contains all prompts.
type PromptsListResponse struct {
	Prompts []prompts.EmbeddedPrompt `json:"prompts"`
}

// ListPromptsEndpoint handles GET /api/prompts.
type ListPromptsEndpoint struct{}

func (e *ListPromptsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/prompts", e.handler
}

func (e *ListPromptsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List prompts
//	@Description	Get every embedded prompt template with its hash
//	@Tags			prompts
//	@Produce		json
//	@Param			key	query		string	true	"Shared API key"
//	@Success		200	{object}	PromptsListResponse
//	@Failure		403	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/prompts [get]
func (e *ListPromptsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r, r.URL.Query().Get("key")) {
		return
	}

	registry := svcctx.PromptsFrom(r.Context())
	if registry == nil {
		writeError(w, http.StatusInternalServerError, "prompt registry not available")
		return
	}

	writeJSON(w, http.StatusOK, PromptsListResponse{Prompts: registry.List()})
}

func (e *ListPromptsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all prompts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var resp PromptsListResponse
			if err := client.Get(ctx, "/api/prompts?key="+url.QueryEscape(api.APIKey()), &resp); err != nil {
				return err
			}

			rows := make([][]string, 0, len(resp.Prompts))
			for _, p := range resp.Prompts {
				hash := p.Hash
				if len(hash) > 12 {
					hash = hash[:12]
				}
				rows = append(rows, []string{p.Key, hash, p.Description})
			}
			return api.OutputTable(resp,
				[]string{"KEY", "HASH", "DESCRIPTION"},
				rows,
				[]api.ColumnAlignment{api.AlignLeft, api.AlignLeft, api.AlignLeft})
		},
	}
}

// GetPromptEndpoint handles GET /api/prompts/{key}.
type GetPromptEndpoint struct{}

func (e *GetPromptEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/prompts/{name}", e.handler
}

func (e *GetPromptEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get a prompt
//	@Description	Get a specific prompt by key
//	@Tags			prompts
//	@Produce		json
//	@Param			name	path		string	true	"Prompt key (e.g., filetask.instruct.zh)"
//	@Param			key		query		string	true	"Shared API key"
//	@Success		200		{object}	prompts.EmbeddedPrompt
//	@Failure		403		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/api/prompts/{name} [get]
func (e *GetPromptEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r, r.URL.Query().Get("key")) {
		return
	}

	name, err := url.PathUnescape(r.PathValue("name"))
	if err != nil || name == "" {
		writeError(w, http.StatusBadRequest, "invalid prompt key")
		return
	}

	registry := svcctx.PromptsFrom(r.Context())
	if registry == nil {
		writeError(w, http.StatusInternalServerError, "prompt registry not available")
		return
	}

	p, ok := registry.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "prompt not found: "+name)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (e *GetPromptEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Show a prompt template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			path := "/api/prompts/" + url.PathEscape(args[0]) + "?key=" + url.QueryEscape(api.APIKey())
			var resp prompts.EmbeddedPrompt
			if err := client.Get(ctx, path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
