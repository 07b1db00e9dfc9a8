package endpoints

import (
	"errors"
	"net/http"
	"sort"

	"github.com/spf13/cobra"

	"github.com/alphadeepmind/llmserve/internal/api"
	"github.com/alphadeepmind/llmserve/internal/engine"
	"github.com/alphadeepmind/llmserve/internal/prompts/similarity"
	"github.com/alphadeepmind/llmserve/internal/structured"
	"github.com/alphadeepmind/llmserve/internal/svcctx"
)

const (
	similarityEndpointName = "similarity-analysis"
	msgSimilarityUnparsed  = "相似性分析結果解析失敗"
)

var (
	similarityGuided = guidedSchema(similarity.ResponseSchema)
	similaritySchema = structured.MustCompileSchema("similarity_analysis", mustMarshal(similarity.ResponseSchema))

	similaritySampling = engine.SamplingParams{
		Temperature:       0.2,
		MaxTokens:         800,
		TopK:              5,
		RepetitionPenalty: 1.02,
	}
)

// SimilarityRequest is the body of POST /similarity-analysis.
type SimilarityRequest struct {
	QueryDepartment      string   `json:"query_department"`
	QuerySchool          string   `json:"query_school"`
	CandidateDepartments []string `json:"candidate_departments"`
	CandidateSchools     []string `json:"candidate_schools"`
	Key                  string   `json:"key"`
}

// SimilarityEndpoint handles POST /similarity-analysis.
type SimilarityEndpoint struct{}

func (e *SimilarityEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/similarity-analysis", e.handler
}

func (e *SimilarityEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Score candidate departments and schools
//	@Description	Score each candidate against the queried department and school (0-100) with reasons.
//	@Tags			matching
//	@Accept			json
//	@Produce		json
//	@Param			request	body		SimilarityRequest	true	"Query and candidates"
//	@Success		200		{object}	similarity.Result
//	@Failure		400		{object}	ErrorResponse
//	@Failure		403		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/similarity-analysis [post]
func (e *SimilarityEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req SimilarityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !authorize(w, r, req.Key) {
		return
	}

	ctx := r.Context()
	logger := svcctx.LoggerFrom(ctx)

	prompt, err := similarity.Prompt(similarity.Input{
		QueryDepartment:      req.QueryDepartment,
		QuerySchool:          req.QuerySchool,
		CandidateDepartments: req.CandidateDepartments,
		CandidateSchools:     req.CandidateSchools,
	})
	if err != nil {
		logger.Error("failed to render similarity prompt", "error", err)
		writeError(w, http.StatusInternalServerError, "相似性分析失敗：prompt rendering failed")
		return
	}

	res, call, err := generate(ctx, invocation{
		endpoint:  similarityEndpointName,
		promptKey: similarity.PromptKey,
		prompt:    prompt,
		sampling:  similaritySampling,
		guided:    similarityGuided,
	})
	if err != nil {
		record(ctx, call)
		writeError(w, http.StatusInternalServerError, "相似性分析失敗："+summarize(err))
		return
	}

	out, err := structured.Extract(res.Text, structured.Options{
		Delimiter: svcctx.ConfigFrom(ctx).Engine.ReasoningDelimiter,
		Policy:    structured.Strict,
		Schema:    similaritySchema,
		Logger:    logger.With("endpoint", similarityEndpointName, "request_id", call.RequestID),
	})
	if err != nil {
		var perr *structured.ParseError
		if errors.As(err, &perr) {
			call.MarkParseFailure(perr.Err, false)
		}
		record(ctx, call)
		writeError(w, http.StatusInternalServerError, msgSimilarityUnparsed)
		return
	}
	record(ctx, call)

	logger.Info("similarity analysis succeeded", "request_id", call.RequestID)
	writeRaw(w, http.StatusOK, out.Value)
}

func (e *SimilarityEndpoint) Command(getServerURL func() string) *cobra.Command {
	var departments, schools []string
	cmd := &cobra.Command{
		Use:   "similarity <department> <school>",
		Short: "Score candidate departments and schools",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			req := SimilarityRequest{
				QueryDepartment:      args[0],
				QuerySchool:          args[1],
				CandidateDepartments: departments,
				CandidateSchools:     schools,
				Key:                  api.APIKey(),
			}
			var resp similarity.Result
			if err := client.Post(ctx, "/similarity-analysis", req, &resp); err != nil {
				return err
			}
			return api.OutputTable(resp,
				[]string{"KIND", "CANDIDATE", "SCORE", "REASON"},
				similarityRows(resp),
				[]api.ColumnAlignment{api.AlignLeft, api.AlignLeft, api.AlignRight, api.AlignLeft})
		},
	}
	cmd.Flags().StringSliceVarP(&departments, "departments", "d", nil, "Candidate departments (comma separated)")
	cmd.Flags().StringSliceVarP(&schools, "schools", "s", nil, "Candidate schools (comma separated)")
	return cmd
}

func similarityRows(res similarity.Result) [][]string {
	var rows [][]string
	add := func(kind string, scores map[string]similarity.Score) {
		names := make([]string, 0, len(scores))
		for name := range scores {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			s := scores[name]
			rows = append(rows, []string{kind, name, formatScore(s.Score), s.Reason})
		}
	}
	add("department", res.DepartmentScores)
	add("school", res.SchoolScores)
	return rows
}
