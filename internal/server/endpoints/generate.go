package endpoints

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alphadeepmind/llmserve/internal/api"
	"github.com/alphadeepmind/llmserve/internal/engine"
	"github.com/alphadeepmind/llmserve/internal/prompts"
	"github.com/alphadeepmind/llmserve/internal/svcctx"
)

const (
	generateEndpointName       = "generate"
	defaultGenerateTemperature = 0.6
	defaultGenerateMaxTokens   = 1000
)

// generateSampling is fixed; the temperature parameter is accepted for
// compatibility and recorded, but never forwarded.
func generateSampling(maxTokens int) engine.SamplingParams {
	return engine.SamplingParams{
		Temperature:       0,
		MaxTokens:         maxTokens,
		TopK:              10,
		RepetitionPenalty: 1.03,
	}
}

// GenerateEndpoint handles GET /generate.
type GenerateEndpoint struct{}

func (e *GenerateEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/generate", e.handler
}

func (e *GenerateEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Generate text
//	@Description	Run one blocking completion. A step-by-step hint is appended to math prompts.
//	@Tags			generation
//	@Produce		json
//	@Param			prompt		query		string	true	"Prompt (max 4000 characters)"
//	@Param			key			query		string	true	"Shared API key"
//	@Param			temperature	query		number	false	"Accepted for compatibility (default 0.6)"
//	@Param			max_tokens	query		int		false	"Max tokens to generate (default 1000)"
//	@Success		200			{object}	ResultResponse
//	@Failure		400			{object}	ErrorResponse
//	@Failure		403			{object}	ErrorResponse
//	@Failure		500			{object}	ErrorResponse
//	@Router			/generate [get]
func (e *GenerateEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !authorize(w, r, q.Get("key")) {
		return
	}

	temperature, err := floatParam(r, "temperature", defaultGenerateTemperature)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	maxTokens, err := intParam(r, "max_tokens", defaultGenerateMaxTokens)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	prompt := q.Get("prompt")
	if !checkPrompt(w, r, prompt) || !checkMaxTokens(w, maxTokens) {
		return
	}

	inv := invocation{
		endpoint:    generateEndpointName,
		prompt:      prompts.WithMathHint(prompt, prompt),
		sampling:    generateSampling(maxTokens),
		temperature: &temperature,
	}
	if inv.prompt != prompt {
		inv.promptKey = prompts.MathHintKey
	}

	ctx := r.Context()
	res, call, err := generate(ctx, inv)
	record(ctx, call)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "生成失敗："+summarize(err))
		return
	}

	svcctx.LoggerFrom(ctx).Info("text generation succeeded",
		"request_id", call.RequestID,
		"latency_ms", call.LatencyMs)
	writeJSON(w, http.StatusOK, ResultResponse{Result: res.Text})
}

func (e *GenerateEndpoint) Command(getServerURL func() string) *cobra.Command {
	var maxTokens int
	var temperature float64
	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Run a one-shot completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())

			params := url.Values{}
			params.Set("prompt", args[0])
			params.Set("key", api.APIKey())
			params.Set("temperature", strconv.FormatFloat(temperature, 'f', -1, 64))
			params.Set("max_tokens", strconv.Itoa(maxTokens))

			var resp ResultResponse
			if err := client.Get(ctx, "/generate?"+params.Encode(), &resp); err != nil {
				return err
			}
			if api.GetOutputFormat() == api.OutputFormatTable {
				fmt.Println(resp.Result)
				return nil
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().IntVar(&maxTokens, "max-tokens", defaultGenerateMaxTokens, "Max tokens to generate")
	cmd.Flags().Float64Var(&temperature, "temperature", defaultGenerateTemperature, "Sampling temperature (accepted, not forwarded)")
	return cmd
}
