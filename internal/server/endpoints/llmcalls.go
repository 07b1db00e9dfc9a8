package endpoints

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/alphadeepmind/llmserve/internal/api"
	"github.com/alphadeepmind/llmserve/internal/llmcall"
	"github.com/alphadeepmind/llmserve/internal/svcctx"
)

// LLMCallsResponse contains a list of LLM calls.
type LLMCallsResponse struct {
	Calls []llmcall.Call `json:"calls"`
	Total int            `json:"total"`
}

// LLMCallResponse contains a single LLM call.
type LLMCallResponse struct {
	Call *llmcall.Call `json:"call,omitempty"`
}

// LLMCallCountsResponse contains call counts per endpoint.
type LLMCallCountsResponse struct {
	Counts map[string]int `json:"counts"`
}

// PruneLLMCallsResponse reports how many calls were deleted.
type PruneLLMCallsResponse struct {
	Deleted int64     `json:"deleted"`
	Before  time.Time `json:"before"`
}

// parseFilter reads the shared llmcall query filters.
func parseFilter(q url.Values) (llmcall.QueryFilter, error) {
	filter := llmcall.QueryFilter{
		Endpoint:  q.Get("endpoint"),
		PromptKey: q.Get("prompt_key"),
		Model:     q.Get("model"),
		RequestID: q.Get("request_id"),
	}

	if v := q.Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, fmt.Errorf("invalid success filter: %q must be true or false", v)
		}
		filter.Success = &b
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return filter, fmt.Errorf("invalid limit: %q must be an integer", v)
		}
		filter.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			return filter, fmt.Errorf("invalid offset: %q must be an integer", v)
		}
		filter.Offset = offset
	}
	if v := q.Get("after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, fmt.Errorf("invalid after time: %q must be RFC3339 format (e.g., 2024-01-15T00:00:00Z)", v)
		}
		filter.After = &t
	}
	if v := q.Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, fmt.Errorf("invalid before time: %q must be RFC3339 format (e.g., 2024-01-15T00:00:00Z)", v)
		}
		filter.Before = &t
	}
	return filter, nil
}

// ListLLMCallsEndpoint handles GET /api/llmcalls.
type ListLLMCallsEndpoint struct{}

func (e *ListLLMCallsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/llmcalls", e.handler
}

func (e *ListLLMCallsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List LLM calls
//	@Description	Get call history with optional filters, newest first
//	@Tags			llmcalls
//	@Produce		json
//	@Param			key			query		string	true	"Shared API key"
//	@Param			endpoint	query		string	false	"Filter by endpoint (generate, stream, ...)"
//	@Param			prompt_key	query		string	false	"Filter by prompt key"
//	@Param			model		query		string	false	"Filter by model"
//	@Param			request_id	query		string	false	"Filter by request ID"
//	@Param			success		query		bool	false	"Filter by success status (true or false)"
//	@Param			limit		query		int		false	"Max results (default 100)"
//	@Param			offset		query		int		false	"Result offset"
//	@Param			after		query		string	false	"Filter calls after this RFC3339 timestamp"
//	@Param			before		query		string	false	"Filter calls before this RFC3339 timestamp"
//	@Success		200			{object}	LLMCallsResponse
//	@Failure		400			{object}	ErrorResponse
//	@Failure		403			{object}	ErrorResponse
//	@Failure		500			{object}	ErrorResponse
//	@Router			/api/llmcalls [get]
func (e *ListLLMCallsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !authorize(w, r, q.Get("key")) {
		return
	}

	store := svcctx.LLMCallStoreFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusInternalServerError, "LLM call store not available")
		return
	}

	filter, err := parseFilter(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	calls, err := store.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if calls == nil {
		calls = []llmcall.Call{}
	}

	writeJSON(w, http.StatusOK, LLMCallsResponse{
		Calls: calls,
		Total: len(calls),
	})
}

func (e *ListLLMCallsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var endpoint, promptKey, model, requestID string
	var limit, offset int
	var successOnly, failedOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List LLM calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())

			params := url.Values{}
			params.Set("key", api.APIKey())
			if endpoint != "" {
				params.Set("endpoint", endpoint)
			}
			if promptKey != "" {
				params.Set("prompt_key", promptKey)
			}
			if model != "" {
				params.Set("model", model)
			}
			if requestID != "" {
				params.Set("request_id", requestID)
			}
			if successOnly {
				params.Set("success", "true")
			}
			if failedOnly {
				params.Set("success", "false")
			}
			if limit > 0 {
				params.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				params.Set("offset", strconv.Itoa(offset))
			}

			var resp LLMCallsResponse
			if err := client.Get(ctx, "/api/llmcalls?"+params.Encode(), &resp); err != nil {
				return err
			}

			rows := make([][]string, 0, len(resp.Calls))
			for _, c := range resp.Calls {
				status := "ok"
				switch {
				case !c.Success:
					status = "error"
				case c.UsedFallback:
					status = "fallback"
				}
				rows = append(rows, []string{
					c.Timestamp.Local().Format("2006-01-02 15:04:05"),
					c.Endpoint,
					c.PromptKey,
					strconv.FormatInt(c.LatencyMs, 10),
					strconv.Itoa(c.CompletionTokens),
					status,
					c.ID,
				})
			}
			return api.OutputTable(resp,
				[]string{"TIME", "ENDPOINT", "PROMPT", "LATENCY MS", "TOKENS", "STATUS", "ID"},
				rows,
				[]api.ColumnAlignment{api.AlignLeft, api.AlignLeft, api.AlignLeft, api.AlignRight, api.AlignRight, api.AlignLeft, api.AlignLeft})
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Filter by endpoint")
	cmd.Flags().StringVar(&promptKey, "prompt-key", "", "Filter by prompt key")
	cmd.Flags().StringVar(&model, "model", "", "Filter by model")
	cmd.Flags().StringVar(&requestID, "request-id", "", "Filter by request ID")
	cmd.Flags().BoolVar(&successOnly, "success", false, "Only show successful calls")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only show failed calls")
	cmd.Flags().IntVar(&limit, "limit", 100, "Max results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Result offset")
	return cmd
}

// GetLLMCallEndpoint handles GET /api/llmcalls/{id}.
type GetLLMCallEndpoint struct{}

func (e *GetLLMCallEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/llmcalls/{id}", e.handler
}

func (e *GetLLMCallEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get an LLM call
//	@Description	Get a single LLM call by ID, including the prompt and raw output
//	@Tags			llmcalls
//	@Produce		json
//	@Param			id	path		string	true	"LLM call ID"
//	@Param			key	query		string	true	"Shared API key"
//	@Success		200	{object}	LLMCallResponse
//	@Failure		403	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/llmcalls/{id} [get]
func (e *GetLLMCallEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r, r.URL.Query().Get("key")) {
		return
	}

	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id required")
		return
	}

	store := svcctx.LLMCallStoreFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusInternalServerError, "LLM call store not available")
		return
	}

	call, err := store.Get(r.Context(), id)
	if errors.Is(err, llmcall.ErrNotFound) {
		writeError(w, http.StatusNotFound, "LLM call not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, LLMCallResponse{Call: call})
}

func (e *GetLLMCallEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get an LLM call by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			path := "/api/llmcalls/" + url.PathEscape(args[0]) + "?key=" + url.QueryEscape(api.APIKey())
			var resp LLMCallResponse
			if err := client.Get(ctx, path, &resp); err != nil {
				return err
			}
			return api.Output(resp.Call)
		},
	}
}

// LLMCallCountsEndpoint handles GET /api/llmcalls/counts.
type LLMCallCountsEndpoint struct{}

func (e *LLMCallCountsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/llmcalls/counts", e.handler
}

func (e *LLMCallCountsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Count LLM calls by endpoint
//	@Description	Get the number of recorded calls per endpoint, optionally filtered
//	@Tags			llmcalls
//	@Produce		json
//	@Param			key		query		string	true	"Shared API key"
//	@Param			success	query		bool	false	"Filter by success status"
//	@Param			after	query		string	false	"Only calls after this RFC3339 timestamp"
//	@Param			before	query		string	false	"Only calls before this RFC3339 timestamp"
//	@Success		200		{object}	LLMCallCountsResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		403		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/api/llmcalls/counts [get]
func (e *LLMCallCountsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !authorize(w, r, q.Get("key")) {
		return
	}

	store := svcctx.LLMCallStoreFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusInternalServerError, "LLM call store not available")
		return
	}

	filter, err := parseFilter(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	counts, err := store.CountByEndpoint(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, LLMCallCountsResponse{Counts: counts})
}

func (e *LLMCallCountsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var failedOnly bool
	cmd := &cobra.Command{
		Use:   "counts",
		Short: "Count LLM calls by endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())

			params := url.Values{}
			params.Set("key", api.APIKey())
			if failedOnly {
				params.Set("success", "false")
			}

			var resp LLMCallCountsResponse
			if err := client.Get(ctx, "/api/llmcalls/counts?"+params.Encode(), &resp); err != nil {
				return err
			}

			names := make([]string, 0, len(resp.Counts))
			for name := range resp.Counts {
				names = append(names, name)
			}
			sort.Strings(names)
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				rows = append(rows, []string{name, strconv.Itoa(resp.Counts[name])})
			}
			return api.OutputTable(resp.Counts,
				[]string{"ENDPOINT", "CALLS"},
				rows,
				[]api.ColumnAlignment{api.AlignLeft, api.AlignRight})
		},
	}
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only count failed calls")
	return cmd
}

// PruneLLMCallsEndpoint handles DELETE /api/llmcalls.
type PruneLLMCallsEndpoint struct{}

func (e *PruneLLMCallsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/llmcalls", e.handler
}

func (e *PruneLLMCallsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Prune LLM calls
//	@Description	Delete calls recorded before a cutoff
//	@Tags			llmcalls
//	@Produce		json
//	@Param			key		query		string	true	"Shared API key"
//	@Param			before	query		string	true	"RFC3339 cutoff"
//	@Success		200		{object}	PruneLLMCallsResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		403		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/api/llmcalls [delete]
func (e *PruneLLMCallsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !authorize(w, r, q.Get("key")) {
		return
	}

	v := q.Get("before")
	if v == "" {
		writeError(w, http.StatusBadRequest, "before is required")
		return
	}
	before, err := time.Parse(time.RFC3339, v)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid before time: %q must be RFC3339 format (e.g., 2024-01-15T00:00:00Z)", v))
		return
	}

	store := svcctx.LLMCallStoreFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusInternalServerError, "LLM call store not available")
		return
	}

	deleted, err := store.DeleteBefore(r.Context(), before)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	svcctx.LoggerFrom(r.Context()).Info("pruned llm calls", "deleted", deleted, "before", before)
	writeJSON(w, http.StatusOK, PruneLLMCallsResponse{Deleted: deleted, Before: before})
}

func (e *PruneLLMCallsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete LLM calls older than a duration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())

			params := url.Values{}
			params.Set("key", api.APIKey())
			params.Set("before", time.Now().Add(-olderThan).UTC().Format(time.RFC3339))

			var resp PruneLLMCallsResponse
			if err := client.Delete(ctx, "/api/llmcalls?"+params.Encode(), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Delete calls older than this")
	return cmd
}
