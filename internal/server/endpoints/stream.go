package endpoints

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alphadeepmind/llmserve/internal/api"
	"github.com/alphadeepmind/llmserve/internal/engine"
	"github.com/alphadeepmind/llmserve/internal/prompts/stream"
	"github.com/alphadeepmind/llmserve/internal/structured"
	"github.com/alphadeepmind/llmserve/internal/svcctx"
)

const (
	streamEndpointName       = "stream"
	defaultStreamTemperature = 0.6
	defaultStreamMaxTokens   = 2048
)

// StreamRequest is the body of POST /stream.
type StreamRequest struct {
	Prompt      string   `json:"prompt"`
	Key         string   `json:"key"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

func streamSampling(maxTokens int) engine.SamplingParams {
	return engine.SamplingParams{
		Temperature:       0,
		MaxTokens:         maxTokens,
		TopK:              10,
		RepetitionPenalty: 1.04,
	}
}

// StreamEndpoint handles POST /stream.
type StreamEndpoint struct{}

func (e *StreamEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/stream", e.handler
}

func (e *StreamEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Stream an answer
//	@Description	Wrap the question in a language-matched answer template and stream the answer
//	@Description	as server-sent events. The reasoning segment is never sent.
//	@Tags			generation
//	@Accept			json
//	@Produce		text/event-stream
//	@Param			request	body		StreamRequest	true	"Question and key"
//	@Success		200		{string}	string			"data: <text>"
//	@Failure		400		{object}	ErrorResponse
//	@Failure		403		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/stream [post]
func (e *StreamEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req StreamRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !authorize(w, r, req.Key) {
		return
	}

	maxTokens := defaultStreamMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	temperature := defaultStreamTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	if !checkPrompt(w, r, req.Prompt) || !checkMaxTokens(w, maxTokens) {
		return
	}

	ctx := r.Context()
	logger := svcctx.LoggerFrom(ctx)
	cfg := svcctx.ConfigFrom(ctx)

	wrapped, key, err := stream.Prompt(req.Prompt)
	if err != nil {
		logger.Error("failed to render stream prompt", "error", err)
		writeError(w, http.StatusInternalServerError, "流式傳輸失敗：prompt rendering failed")
		return
	}

	inv := invocation{
		endpoint:    streamEndpointName,
		promptKey:   key,
		prompt:      wrapped,
		sampling:    streamSampling(maxTokens),
		temperature: &temperature,
	}

	eng := svcctx.EngineFrom(ctx)
	if eng == nil {
		record(ctx, inv.record(ctx, nil, nil, engine.ErrEngineUnavailable, time.Now()))
		writeError(w, http.StatusInternalServerError, "流式傳輸失敗："+summarize(engine.ErrEngineUnavailable))
		return
	}

	sse := newEventWriter(w)
	filter := structured.NewStreamFilter(cfg.Engine.ReasoningDelimiter, sse.send)

	start := time.Now()
	res, err := eng.Stream(ctx, inv.request(ctx), filter.Write)
	if err == nil {
		err = filter.Flush()
	}
	call := inv.record(ctx, eng, res, err, start)
	record(ctx, call)

	if err != nil {
		if errors.Is(err, errClientGone) || ctx.Err() != nil {
			logger.Info("stream client disconnected", "request_id", call.RequestID)
			return
		}
		logger.Error("stream failed",
			"request_id", call.RequestID,
			"sent_events", sse.events,
			"error", err)
		msg := "流式傳輸失敗：" + summarize(err)
		if !sse.started {
			writeError(w, http.StatusInternalServerError, msg)
			return
		}
		sse.fail(msg)
		return
	}

	sse.start()
	logger.Info("stream completed",
		"request_id", call.RequestID,
		"events", sse.events,
		"latency_ms", call.LatencyMs)
}

// errClientGone is returned by eventWriter when a write to the client fails.
var errClientGone = errors.New("client connection closed")

// eventWriter writes server-sent events. Headers are sent with the first
// event so that failures before any output can still be reported as JSON.
type eventWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
	events  int
}

func newEventWriter(w http.ResponseWriter) *eventWriter {
	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})
	return &eventWriter{w: w, rc: rc}
}

func (s *eventWriter) start() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	_ = s.rc.Flush()
}

// send writes one event. Each line of text becomes its own data line.
func (s *eventWriter) send(text string) error {
	s.start()
	if err := s.write("", text); err != nil {
		return err
	}
	s.events++
	return nil
}

func (s *eventWriter) fail(msg string) {
	_ = s.write("error", msg)
}

func (s *eventWriter) write(event, text string) error {
	var b strings.Builder
	if event != "" {
		fmt.Fprintf(&b, "event: %s\n", event)
	}
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")

	if _, err := s.w.Write([]byte(b.String())); err != nil {
		return fmt.Errorf("%w: %w", errClientGone, err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("%w: %w", errClientGone, err)
	}
	return nil
}

func (e *StreamEndpoint) Command(getServerURL func() string) *cobra.Command {
	var maxTokens int
	var temperature float64
	cmd := &cobra.Command{
		Use:   "stream <prompt>",
		Short: "Stream an answer to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			req := StreamRequest{
				Prompt:      args[0],
				Key:         api.APIKey(),
				Temperature: &temperature,
				MaxTokens:   &maxTokens,
			}
			err := client.Stream(ctx, "/stream", req, func(text string) error {
				_, err := fmt.Fprint(os.Stdout, text)
				return err
			})
			fmt.Fprintln(os.Stdout)
			return err
		},
	}
	cmd.Flags().IntVar(&maxTokens, "max-tokens", defaultStreamMaxTokens, "Max tokens to generate")
	cmd.Flags().Float64Var(&temperature, "temperature", defaultStreamTemperature, "Sampling temperature (accepted, not forwarded)")
	return cmd
}
