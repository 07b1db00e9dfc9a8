package endpoints

import (
	"encoding/json"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/alphadeepmind/llmserve/internal/api"
	"github.com/alphadeepmind/llmserve/internal/engine"
	"github.com/alphadeepmind/llmserve/internal/prompts/match"
	"github.com/alphadeepmind/llmserve/internal/structured"
	"github.com/alphadeepmind/llmserve/internal/svcctx"
)

const smartMatchEndpointName = "smart-match"

var (
	smartMatchGuided = guidedSchema(match.ResponseSchema)
	smartMatchSchema = structured.MustCompileSchema("smart_match", mustMarshal(match.ResponseSchema))

	smartMatchSampling = engine.SamplingParams{
		Temperature:       0.1,
		MaxTokens:         500,
		TopK:              5,
		RepetitionPenalty: 1.02,
	}
)

// SmartMatchRequest is the body of POST /smart-match.
type SmartMatchRequest struct {
	TargetDepartment     string   `json:"target_department"`
	TargetSchool         string   `json:"target_school"`
	AvailableDepartments []string `json:"available_departments"`
	AvailableSchools     []string `json:"available_schools"`
	Key                  string   `json:"key"`
}

// SmartMatchEndpoint handles POST /smart-match.
type SmartMatchEndpoint struct{}

func (e *SmartMatchEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/smart-match", e.handler
}

func (e *SmartMatchEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Match a department and school
//	@Description	Pick the closest available department and school to the desired ones.
//	@Description	Unparseable model output yields the first available options with scores of 50.
//	@Tags			matching
//	@Accept			json
//	@Produce		json
//	@Param			request	body		SmartMatchRequest	true	"Desired and available options"
//	@Success		200		{object}	match.Result
//	@Failure		400		{object}	ErrorResponse
//	@Failure		403		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/smart-match [post]
func (e *SmartMatchEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req SmartMatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !authorize(w, r, req.Key) {
		return
	}

	ctx := r.Context()
	logger := svcctx.LoggerFrom(ctx)
	in := match.Input{
		TargetDepartment:     req.TargetDepartment,
		TargetSchool:         req.TargetSchool,
		AvailableDepartments: req.AvailableDepartments,
		AvailableSchools:     req.AvailableSchools,
	}

	prompt, err := match.Prompt(in)
	if err != nil {
		logger.Error("failed to render smart-match prompt", "error", err)
		writeError(w, http.StatusInternalServerError, "智能匹配失敗：prompt rendering failed")
		return
	}

	res, call, err := generate(ctx, invocation{
		endpoint:  smartMatchEndpointName,
		promptKey: match.PromptKey,
		prompt:    prompt,
		sampling:  smartMatchSampling,
		guided:    smartMatchGuided,
	})
	if err != nil {
		record(ctx, call)
		writeError(w, http.StatusInternalServerError, "智能匹配失敗："+summarize(err))
		return
	}

	out, err := structured.Extract(res.Text, structured.Options{
		Delimiter: svcctx.ConfigFrom(ctx).Engine.ReasoningDelimiter,
		Policy:    structured.Tolerant,
		Fallback:  match.Fallback(in),
		Schema:    smartMatchSchema,
		Logger:    logger.With("endpoint", smartMatchEndpointName, "request_id", call.RequestID),
		OnFailure: func(_ string, perr error) {
			call.MarkParseFailure(perr, true)
		},
	})
	record(ctx, call)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "智能匹配失敗：fallback could not be encoded")
		return
	}

	logger.Info("smart match succeeded",
		"request_id", call.RequestID,
		"used_fallback", out.UsedFallback)
	writeRaw(w, http.StatusOK, out.Value)
}

func (e *SmartMatchEndpoint) Command(getServerURL func() string) *cobra.Command {
	var departments, schools []string
	cmd := &cobra.Command{
		Use:   "smart-match <department> <school>",
		Short: "Match a department and school against available options",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			req := SmartMatchRequest{
				TargetDepartment:     args[0],
				TargetSchool:         args[1],
				AvailableDepartments: departments,
				AvailableSchools:     schools,
				Key:                  api.APIKey(),
			}
			var resp match.Result
			if err := client.Post(ctx, "/smart-match", req, &resp); err != nil {
				return err
			}
			return api.OutputTable(resp,
				[]string{"FIELD", "MATCH", "SCORE"},
				[][]string{
					{"department", resp.MatchedDepartment, formatScore(resp.DepartmentSimilarityScore)},
					{"school", resp.MatchedSchool, formatScore(resp.SchoolSimilarityScore)},
				},
				[]api.ColumnAlignment{api.AlignLeft, api.AlignLeft, api.AlignRight})
		},
	}
	cmd.Flags().StringSliceVarP(&departments, "departments", "d", nil, "Available departments (comma separated)")
	cmd.Flags().StringSliceVarP(&schools, "schools", "s", nil, "Available schools (comma separated)")
	return cmd
}

// writeRaw writes an already-encoded JSON document.
func writeRaw(w http.ResponseWriter, status int, body json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
